package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStartedBroker(t *testing.T, cfg Config) *Broker {
	t.Helper()
	b := NewBroker(cfg)
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func receive(t *testing.T, sub *Subscription) *Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	b := newStartedBroker(t, Config{})

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(EventOrderCreated, map[string]string{"id": "o-1"})

	for _, sub := range []*Subscription{s1, s2} {
		ev := receive(t, sub)
		assert.Equal(t, EventOrderCreated, ev.Type)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBrokerPreservesPublishOrder(t *testing.T) {
	b := newStartedBroker(t, Config{SubscriberBuffer: 100})
	sub := b.Subscribe()

	for i := 0; i < 20; i++ {
		b.Publish(EventOrderUpdated, i)
	}
	for i := 0; i < 20; i++ {
		ev := receive(t, sub)
		assert.Equal(t, i, ev.Payload)
	}
}

func TestBrokerUnsubscribeIsIdempotent(t *testing.T) {
	b := newStartedBroker(t, Config{})
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	assert.Equal(t, 0, b.SubscriberCount())
	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestBrokerUnsubscribedReceivesNothing(t *testing.T) {
	b := newStartedBroker(t, Config{})
	gone := b.Subscribe()
	stay := b.Subscribe()
	b.Unsubscribe(gone)

	b.Publish(EventOrderCreated, "x")
	receive(t, stay)

	_, ok := <-gone.C
	assert.False(t, ok)
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := newStartedBroker(t, Config{SubscriberBuffer: 1})
	slow := b.Subscribe()
	fast := b.Subscribe()

	b.Publish(EventOrderCreated, 1)
	receive(t, fast)
	b.Publish(EventOrderCreated, 2)
	receive(t, fast)

	// slow only had room for the first event
	ev := receive(t, slow)
	assert.Equal(t, 1, ev.Payload)
	select {
	case ev := <-slow.C:
		t.Fatalf("unexpected event %v", ev.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerPresence(t *testing.T) {
	b := newStartedBroker(t, Config{})

	var mu sync.Mutex
	var transitions []bool
	b.OnPresence(func(active bool) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, active)
	})

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.Unsubscribe(s1)
	b.Unsubscribe(s2)
	s3 := b.Subscribe()
	b.Unsubscribe(s3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false, true, false}, transitions)
}

func TestBrokerPassiveSubscribersDoNotCountAsPresence(t *testing.T) {
	b := newStartedBroker(t, Config{})

	var mu sync.Mutex
	var transitions []bool
	b.OnPresence(func(active bool) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, active)
	})

	relay := b.Subscribe(Passive())
	assert.Equal(t, 1, b.SubscriberCount())
	assert.Equal(t, 0, b.ActiveCount())

	client := b.Subscribe()
	b.Unsubscribe(client)

	// passive subscribers still get events
	b.Publish(EventOrderCreated, "x")
	receive(t, relay)
	b.Unsubscribe(relay)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, transitions)
}

func TestBrokerStopClosesSubscriptions(t *testing.T) {
	b := NewBroker(Config{})
	b.Start()
	sub := b.Subscribe()

	b.Stop()
	b.Stop()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.False(t, b.Running())

	// Publishing and subscribing after stop must not block or panic
	b.Publish(EventOrderCreated, "late")
	late := b.Subscribe()
	_, ok = <-late.C
	assert.False(t, ok)
	b.Unsubscribe(sub)
}

func TestBrokerStopWithoutStart(t *testing.T) {
	b := NewBroker(Config{})
	sub := b.Subscribe()
	b.Stop()

	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestEventEncode(t *testing.T) {
	ev := &Event{Type: EventAnalyticsUpdate, Payload: map[string]int{"todayOrders": 3}}

	data, err := ev.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"analytics_update","payload":{"todayOrders":3}}`, string(data))

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, EventAnalyticsUpdate, msg.Type)
}
