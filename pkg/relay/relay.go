package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/metrics"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives order events when Config.Topic is empty
const DefaultTopic = "foodie-order-events"

// Writer is the part of *kafka.Writer the relay uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Hub is the subscription side of the notification hub
type Hub interface {
	Subscribe(opts ...events.SubscribeOption) *events.Subscription
	Unsubscribe(sub *events.Subscription)
}

// Config selects the brokers and topic
type Config struct {
	Brokers []string
	Topic   string
	// WriteTimeout bounds one publish to Kafka
	WriteTimeout time.Duration
	// BatchTimeout is how long the writer waits to fill a batch. The relay
	// writes one message per call, so this is the floor on each write.
	BatchTimeout time.Duration
	// IncludeAnalytics also relays analytics_update events
	IncludeAnalytics bool
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	return c
}

// NewWriter creates a Kafka writer for cfg
func NewWriter(cfg Config) *kafka.Writer {
	cfg = cfg.withDefaults()
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
}

// KafkaRelay mirrors hub events into a Kafka topic. Messages are keyed by
// order id so a partition sees one order's events in publish order.
// Delivery is best effort: a failed write is logged and counted, never
// retried.
type KafkaRelay struct {
	hub    Hub
	writer Writer
	cfg    Config
	logger zerolog.Logger
}

// New creates a relay. The writer is closed when Run returns.
func New(hub Hub, writer Writer, cfg Config) *KafkaRelay {
	return &KafkaRelay{
		hub:    hub,
		writer: writer,
		cfg:    cfg.withDefaults(),
		logger: log.WithComponent("relay"),
	}
}

// Run relays events until ctx is canceled or the hub stops
func (r *KafkaRelay) Run(ctx context.Context) error {
	sub := r.hub.Subscribe(events.Passive())
	defer r.hub.Unsubscribe(sub)
	defer r.writer.Close()

	r.logger.Info().Str("topic", r.cfg.Topic).Strs("brokers", r.cfg.Brokers).Msg("Event relay started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.C:
			if !ok {
				return nil
			}
			if event.Type == events.EventAnalyticsUpdate && !r.cfg.IncludeAnalytics {
				continue
			}
			r.relay(ctx, event)
		}
	}
}

func (r *KafkaRelay) relay(ctx context.Context, event *events.Event) {
	msg, err := toMessage(event)
	if err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to encode event")
		return
	}

	wctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := r.writer.WriteMessages(wctx, msg); err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("error").Inc()
		r.logger.Warn().Err(err).
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Msg("Failed to relay event")
		return
	}
	metrics.RelayMessagesTotal.WithLabelValues("ok").Inc()
}

// Ping reports whether at least one broker accepts connections
func (r *KafkaRelay) Ping(ctx context.Context) error {
	return PingBrokers(ctx, r.cfg.Brokers)
}

// PingBrokers dials each broker in turn and succeeds on the first that
// answers
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	var errs []error
	for _, addr := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("connection to %s failed: %w", addr, err))
			continue
		}
		conn.Close()
		return nil
	}
	return errors.Join(errs...)
}

func toMessage(event *events.Event) (kafka.Message, error) {
	value, err := event.Encode()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	key := event.ID
	if order, ok := event.Payload.(*types.Order); ok {
		key = order.ID
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}, nil
}
