package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/log"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrGaveUp is returned by Watch when every reconnect attempt failed
var ErrGaveUp = errors.New("gave up reconnecting to event stream")

// WatchOptions tunes a Watcher
type WatchOptions struct {
	// PingInterval is how often an application ping is sent (30s)
	PingInterval time.Duration
	// BaseBackoff is the first reconnect delay; each attempt doubles it (1s)
	BaseBackoff time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects (5)
	MaxReconnectAttempts int
	// OnReconnect runs after a reconnect, before further events are
	// delivered. Events published while disconnected are not replayed, so
	// this is where callers re-query state.
	OnReconnect func(ctx context.Context) error
	Dialer      *websocket.Dialer
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// Watcher follows the server's event stream and reconnects with
// exponential backoff when the connection drops.
type Watcher struct {
	url    string
	opts   WatchOptions
	logger zerolog.Logger
}

// NewWatcher creates a watcher for the server at baseURL. http and https
// URLs are mapped to ws and wss.
func NewWatcher(baseURL string, opts WatchOptions) (*Watcher, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path += "/ws"

	return &Watcher{
		url:    u.String(),
		opts:   opts.withDefaults(),
		logger: log.WithComponent("watcher"),
	}, nil
}

// Backoff returns the delay before reconnect attempt n (1-based)
func (w *Watcher) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return w.opts.BaseBackoff << (attempt - 1)
}

// Watch delivers events to handle until ctx is canceled. It returns nil on
// cancellation and ErrGaveUp after MaxReconnectAttempts consecutive failed
// reconnects. The first connection is not retried.
func (w *Watcher) Watch(ctx context.Context, handle func(events.Message)) error {
	conn, _, err := w.opts.Dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", w.url, err)
	}

	for {
		err := w.session(ctx, conn, handle)
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn().Err(err).Msg("Event stream disconnected")

		conn, err = w.reconnect(ctx)
		if err != nil {
			return err
		}
		if w.opts.OnReconnect != nil {
			if err := w.opts.OnReconnect(ctx); err != nil {
				w.logger.Warn().Err(err).Msg("Reconnect hook failed")
			}
		}
	}
}

func (w *Watcher) reconnect(ctx context.Context) (*websocket.Conn, error) {
	for attempt := 1; attempt <= w.opts.MaxReconnectAttempts; attempt++ {
		delay := w.Backoff(attempt)
		w.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		conn, _, err := w.opts.Dialer.DialContext(ctx, w.url, nil)
		if err == nil {
			w.logger.Info().Int("attempt", attempt).Msg("Reconnected")
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.logger.Debug().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
	}
	return nil, ErrGaveUp
}

// session reads one connection until it fails or ctx is done
func (w *Watcher) session(ctx context.Context, conn *websocket.Conn, handle func(events.Message)) error {
	defer conn.Close()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.keepAlive(ctx, conn, done)
	}()
	defer wg.Wait()
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg events.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Debug().Err(err).Msg("Ignoring malformed message")
			continue
		}
		if msg.Type == "pong" {
			continue
		}
		handle(msg)
	}
}

// keepAlive sends application pings and closes the connection when ctx is
// canceled so a blocked read returns
func (w *Watcher) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
				return
			}
		}
	}
}
