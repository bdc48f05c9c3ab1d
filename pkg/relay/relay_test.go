package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	attempts int
	msgs     []kafka.Message
	fail     error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func startRelay(t *testing.T, writer Writer, cfg Config) (*events.Broker, context.CancelFunc, <-chan error) {
	t.Helper()
	broker := events.NewBroker(events.Config{})
	broker.Start()
	t.Cleanup(broker.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(broker, writer, cfg).Run(ctx) }()

	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	return broker, cancel, done
}

func TestRelayForwardsOrderEvents(t *testing.T) {
	writer := &fakeWriter{}
	broker, cancel, done := startRelay(t, writer, Config{})

	// the relay is internal plumbing, not an audience
	assert.Equal(t, 0, broker.ActiveCount())

	order := &types.Order{ID: "order-1", Status: types.OrderStatusPending}
	broker.Publish(events.EventOrderCreated, order)
	broker.Publish(events.EventAnalyticsUpdate, &types.AnalyticsSnapshot{TodayOrders: 1})
	updated := order.Clone()
	updated.Status = types.OrderStatusAccepted
	broker.Publish(events.EventOrderUpdated, updated)

	require.Eventually(t, func() bool { return len(writer.messages()) == 2 }, time.Second, 5*time.Millisecond)

	msgs := writer.messages()
	for _, msg := range msgs {
		assert.Equal(t, "order-1", string(msg.Key))
	}
	assert.Equal(t, "order_created", string(msgs[0].Headers[0].Value))
	assert.Equal(t, "order_updated", string(msgs[1].Headers[0].Value))

	var wire struct {
		Type    string      `json:"type"`
		Payload types.Order `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msgs[1].Value, &wire))
	assert.Equal(t, "order_updated", wire.Type)
	assert.Equal(t, types.OrderStatusAccepted, wire.Payload.Status)

	cancel()
	require.NoError(t, <-done)
	writer.mu.Lock()
	assert.True(t, writer.closed)
	writer.mu.Unlock()
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestRelayIncludeAnalytics(t *testing.T) {
	writer := &fakeWriter{}
	broker, cancel, done := startRelay(t, writer, Config{IncludeAnalytics: true})
	defer func() { cancel(); <-done }()

	broker.Publish(events.EventAnalyticsUpdate, &types.AnalyticsSnapshot{TodayOrders: 1})

	require.Eventually(t, func() bool { return len(writer.messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := writer.messages()[0]
	assert.Equal(t, "analytics_update", string(msg.Headers[0].Value))
	// keyed by event id when there is no order
	assert.Equal(t, string(msg.Headers[1].Value), string(msg.Key))
}

func TestRelaySurvivesWriteErrors(t *testing.T) {
	writer := &fakeWriter{fail: errors.New("broker unavailable")}
	broker, cancel, done := startRelay(t, writer, Config{})

	broker.Publish(events.EventOrderCreated, &types.Order{ID: "lost"})
	require.Eventually(t, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return writer.attempts == 1
	}, time.Second, 5*time.Millisecond)

	writer.mu.Lock()
	writer.fail = nil
	writer.mu.Unlock()

	broker.Publish(events.EventOrderCreated, &types.Order{ID: "kept"})
	require.Eventually(t, func() bool { return len(writer.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "kept", string(writer.messages()[0].Key))

	cancel()
	require.NoError(t, <-done)
}

func TestRelayStopsWithHub(t *testing.T) {
	writer := &fakeWriter{}
	broker, cancel, done := startRelay(t, writer, Config{})
	defer cancel()

	broker.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop with the hub")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultTopic, cfg.Topic)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)

	w := NewWriter(Config{Brokers: []string{"localhost:9092"}, Topic: "orders"})
	assert.Equal(t, "orders", w.Topic)
	assert.Equal(t, 10*time.Millisecond, w.BatchTimeout)
	w.Close()
}

func TestPingBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	assert.Error(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = PingBrokers(ctx, []string{addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}
