package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/log"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MessageTypePing and MessageTypePong are the application level heartbeat
// messages exchanged on the socket.
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Config controls connection liveness
type Config struct {
	// PongWait is how long a connection may stay silent before it is closed.
	// Any client message or websocket pong renews it.
	PongWait time.Duration
	// PingPeriod is how often the server sends websocket ping frames. It
	// must be shorter than PongWait.
	PingPeriod time.Duration
	// WriteWait bounds a single write
	WriteWait time.Duration
	// MaxMessageSize bounds inbound messages
	MaxMessageSize int64
	// CheckOrigin overrides the upgrader origin check. Nil allows all
	// origins.
	CheckOrigin func(r *http.Request) bool
}

func (c Config) withDefaults() Config {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
	return c
}

// Handler upgrades requests to websockets and streams hub events to them
type Handler struct {
	broker   *events.Broker
	cfg      Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a websocket handler subscribed to broker
func NewHandler(broker *events.Broker, cfg Config) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		broker: broker,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger: log.WithComponent("stream"),
	}
}

// ServeHTTP handles one websocket connection for its whole lifetime
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error
		h.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	sub := h.broker.Subscribe()
	logger := h.logger.With().Str("subscriber_id", sub.ID).Str("remote_addr", r.RemoteAddr).Logger()
	logger.Info().Msg("Client connected")

	c := &connection{
		conn:   conn,
		sub:    sub,
		cfg:    h.cfg,
		pongCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
		logger: logger,
	}

	go c.readLoop()
	c.writeLoop()

	h.broker.Unsubscribe(sub)
	conn.Close()
	logger.Info().Msg("Client disconnected")
}

type connection struct {
	conn   *websocket.Conn
	sub    *events.Subscription
	cfg    Config
	pongCh chan struct{}
	doneCh chan struct{}
	logger zerolog.Logger
}

// readLoop owns all reads. It exits when the peer goes away or stays silent
// past PongWait.
func (c *connection) readLoop() {
	defer close(c.doneCh)

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.renewDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.renewDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("Read failed")
			}
			return
		}
		c.renewDeadline()

		var msg events.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("Ignoring malformed client message")
			continue
		}
		if msg.Type == MessageTypePing {
			select {
			case c.pongCh <- struct{}{}:
			default:
				// a pong is already pending
			}
		}
	}
}

func (c *connection) renewDeadline() {
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
}

// writeLoop owns all writes
func (c *connection) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	pong, _ := json.Marshal(events.Message{Type: MessageTypePong})

	for {
		select {
		case ev, ok := <-c.sub.C:
			if !ok {
				// hub stopped
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			data, err := ev.Encode()
			if err != nil {
				c.logger.Error().Err(err).Str("event_type", string(ev.Type)).Msg("Failed to encode event")
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.pongCh:
			if err := c.write(websocket.TextMessage, pong); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneCh:
			return
		}
	}
}

func (c *connection) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Debug().Err(err).Msg("Write failed")
		return err
	}
	return nil
}
