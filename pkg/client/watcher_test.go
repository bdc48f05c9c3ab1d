package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/stream"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamServer(t *testing.T) (*httptest.Server, *events.Broker) {
	t.Helper()
	broker := events.NewBroker(events.Config{})
	broker.Start()
	t.Cleanup(broker.Stop)

	mux := http.NewServeMux()
	mux.Handle("/ws", stream.NewHandler(broker, stream.Config{}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, broker
}

// flakyServer drops its first websocket connection when kill is closed and
// then hands later connections to next. Hijacked connections are not
// tracked by httptest, so they have to be dropped by hand.
func flakyServer(t *testing.T, next http.Handler, kill <-chan struct{}) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) > 1 {
			next.ServeHTTP(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-kill
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func TestWatcherURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws", false},
		{"https://foodie.example.com/", "wss://foodie.example.com/ws", false},
		{"ws://localhost:8080", "ws://localhost:8080/ws", false},
		{"ftp://localhost", "", true},
	}

	for _, tt := range tests {
		w, err := NewWatcher(tt.base, WatchOptions{})
		if tt.wantErr {
			assert.Error(t, err, tt.base)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, w.url)
	}
}

func TestWatcherBackoff(t *testing.T) {
	w, err := NewWatcher("http://localhost", WatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, time.Second, w.Backoff(1))
	assert.Equal(t, 2*time.Second, w.Backoff(2))
	assert.Equal(t, 4*time.Second, w.Backoff(3))
	assert.Equal(t, 16*time.Second, w.Backoff(5))
	assert.Equal(t, 5, w.opts.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, w.opts.PingInterval)
}

func TestWatcherReceivesEvents(t *testing.T) {
	srv, broker := newStreamServer(t)
	w, err := NewWatcher(srv.URL, WatchOptions{PingInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan events.Message, 10)
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, func(m events.Message) { got <- m }) }()

	require.Eventually(t, func() bool { return broker.ActiveCount() == 1 }, time.Second, 5*time.Millisecond)
	broker.Publish(events.EventOrderCreated, &types.Order{ID: "o-1"})

	select {
	case msg := <-got:
		assert.Equal(t, events.EventOrderCreated, msg.Type)
		assert.Contains(t, string(msg.Payload), `"o-1"`)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	// pongs to the application pings are not delivered
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatcherReconnects(t *testing.T) {
	broker := events.NewBroker(events.Config{})
	broker.Start()
	defer broker.Stop()

	kill := make(chan struct{})
	srv, conns := flakyServer(t, stream.NewHandler(broker, stream.Config{}), kill)

	reconnected := make(chan struct{}, 1)
	w, err := NewWatcher(srv.URL, WatchOptions{
		BaseBackoff: 10 * time.Millisecond,
		OnReconnect: func(ctx context.Context) error {
			reconnected <- struct{}{}
			return nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan events.Message, 100)
	go w.Watch(ctx, func(m events.Message) { got <- m })

	require.Eventually(t, func() bool { return conns.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(kill)

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("did not reconnect")
	}
	assert.Equal(t, int32(2), conns.Load())

	require.Eventually(t, func() bool {
		broker.Publish(events.EventOrderUpdated, &types.Order{ID: "after"})
		select {
		case msg := <-got:
			return msg.Type == events.EventOrderUpdated
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcherGivesUp(t *testing.T) {
	unavailable := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	kill := make(chan struct{})
	srv, conns := flakyServer(t, unavailable, kill)

	reconnects := 0
	w, err := NewWatcher(srv.URL, WatchOptions{
		BaseBackoff:          5 * time.Millisecond,
		MaxReconnectAttempts: 2,
		OnReconnect: func(ctx context.Context) error {
			reconnects++
			return nil
		},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Watch(context.Background(), func(events.Message) {}) }()

	require.Eventually(t, func() bool { return conns.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(kill)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrGaveUp)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not give up")
	}
	assert.Equal(t, int32(3), conns.Load())
	assert.Zero(t, reconnects)
}

func TestWatcherInitialDialFails(t *testing.T) {
	srv, _ := newStreamServer(t)
	srv.Close()

	w, err := NewWatcher(srv.URL, WatchOptions{})
	require.NoError(t, err)
	err = w.Watch(context.Background(), func(events.Message) {})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGaveUp)
}
