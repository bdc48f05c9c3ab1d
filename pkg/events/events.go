package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/metrics"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventOrderCreated    EventType = "order_created"
	EventOrderUpdated    EventType = "order_updated"
	EventAnalyticsUpdate EventType = "analytics_update"
)

// Event is a notification fanned out to every subscriber
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// Message is the wire form of an event
type Message struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode renders the event as {"type": ..., "payload": ...}
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Payload any       `json:"payload"`
	}{e.Type, e.Payload})
}

// Subscription is a handle returned by Subscribe. Events arrive on C until
// the subscription is cancelled or the broker stops, at which point C is
// closed.
type Subscription struct {
	ID string
	C  <-chan *Event

	ch        chan *Event
	closeOnce sync.Once
	passive   bool
}

// SubscribeOption configures a subscription
type SubscribeOption func(*Subscription)

// Passive marks a subscription as internal plumbing (relays, aggregators).
// Passive subscribers receive events but do not count as presence.
func Passive() SubscribeOption {
	return func(s *Subscription) {
		s.passive = true
	}
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// PresenceListener is told when the number of non-passive subscribers goes
// from zero to one (active=true) or from one to zero (active=false).
// Listeners run synchronously and must not call Subscribe or Unsubscribe.
type PresenceListener func(active bool)

// Config sizes the broker's buffers
type Config struct {
	// QueueSize is the publish queue shared by all publishers
	QueueSize int
	// SubscriberBuffer is the per-subscriber channel size
	SubscriberBuffer int
}

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[string]*Subscription
	active      int
	mu          sync.RWMutex

	// presenceMu orders presence notifications with the subscriber changes
	// that caused them
	presenceMu sync.Mutex
	listeners  []PresenceListener

	eventCh    chan *Event
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
	startOnce  sync.Once
	started    bool
	bufferSize int
}

// NewBroker creates a new event broker
func NewBroker(cfg Config) *Broker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 50
	}
	return &Broker{
		subscribers: make(map[string]*Subscription),
		eventCh:     make(chan *Event, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		bufferSize:  cfg.SubscriberBuffer,
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	b.startOnce.Do(func() {
		b.mu.Lock()
		b.started = true
		b.mu.Unlock()
		go b.run()
	})
}

// Stop stops the broker and closes every subscription channel
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})

	b.mu.RLock()
	started := b.started
	b.mu.RUnlock()
	if !started {
		b.closeAll()
		return
	}
	<-b.doneCh
}

// OnPresence registers a presence listener
func (b *Broker) OnPresence(l PresenceListener) {
	b.presenceMu.Lock()
	defer b.presenceMu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Subscribe creates a new subscription
func (b *Broker) Subscribe(opts ...SubscribeOption) *Subscription {
	b.presenceMu.Lock()
	defer b.presenceMu.Unlock()

	ch := make(chan *Event, b.bufferSize)
	sub := &Subscription{
		ID: uuid.New().String(),
		C:  ch,
		ch: ch,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	select {
	case <-b.stopCh:
		// Broker is gone; hand back an already closed subscription
		b.mu.Unlock()
		sub.close()
		return sub
	default:
	}
	b.subscribers[sub.ID] = sub
	count := len(b.subscribers)
	if !sub.passive {
		b.active++
	}
	active := b.active
	b.mu.Unlock()

	metrics.HubSubscribers.Set(float64(count))
	logger := log.WithSubscriberID(sub.ID)
	logger.Debug().Int("subscribers", count).Bool("passive", sub.passive).Msg("Subscriber added")

	if !sub.passive && active == 1 {
		b.notify(true)
	}
	return sub
}

// Unsubscribe removes a subscription. It is safe to call more than once.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.presenceMu.Lock()
	defer b.presenceMu.Unlock()

	b.mu.Lock()
	_, ok := b.subscribers[sub.ID]
	delete(b.subscribers, sub.ID)
	count := len(b.subscribers)
	if ok && !sub.passive {
		b.active--
	}
	active := b.active
	sub.close()
	b.mu.Unlock()

	if !ok {
		return
	}

	metrics.HubSubscribers.Set(float64(count))
	logger := log.WithSubscriberID(sub.ID)
	logger.Debug().Int("subscribers", count).Msg("Subscriber removed")

	if !sub.passive && active == 0 {
		b.notify(false)
	}
}

func (b *Broker) notify(active bool) {
	for _, l := range b.listeners {
		l(active)
	}
}

// Publish queues an event for delivery to all current subscribers. It never
// fails: slow subscribers lose the event, and events published after Stop
// are discarded.
func (b *Broker) Publish(eventType EventType, payload any) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			b.closeAll()
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	metrics.HubEventsPublished.WithLabelValues(string(event.Type)).Inc()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full, skip
			metrics.HubEventsDropped.Inc()
			logger := log.WithSubscriberID(sub.ID)
			logger.Warn().
				Str("event_type", string(event.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		sub.close()
		delete(b.subscribers, id)
	}
	b.active = 0
	metrics.HubSubscribers.Set(0)
}

// ActiveCount returns the number of non-passive subscribers
func (b *Broker) ActiveCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// SubscriberCount returns the number of subscribers, passive ones included
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Running reports whether the distribution loop is still accepting events
func (b *Broker) Running() bool {
	select {
	case <-b.stopCh:
		return false
	default:
		return true
	}
}
