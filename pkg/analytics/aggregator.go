package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/metrics"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Source is the read side of the store the aggregator needs
type Source interface {
	CountOrdersSince(ctx context.Context, since time.Time) (int, error)
	SumTotalSince(ctx context.Context, since time.Time, statuses ...types.OrderStatus) (decimal.Decimal, error)
	CountByStatus(ctx context.Context, statuses ...types.OrderStatus) (int, error)
}

// Hub is the part of events.Broker the aggregator uses
type Hub interface {
	Publish(eventType events.EventType, payload any)
	Subscribe(opts ...events.SubscribeOption) *events.Subscription
	Unsubscribe(sub *events.Subscription)
	OnPresence(l events.PresenceListener)
}

// Config tunes the aggregator
type Config struct {
	// Interval between periodic snapshots
	Interval time.Duration
	// MinRefresh is the minimum gap between event-driven snapshots
	MinRefresh time.Duration
	// ComputeTimeout bounds one snapshot computation
	ComputeTimeout time.Duration
	// Location defines where "today" starts. Defaults to time.Local.
	Location *time.Location
	// Now overrides the clock (tests)
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.MinRefresh <= 0 {
		c.MinRefresh = time.Second
	}
	if c.ComputeTimeout <= 0 {
		c.ComputeTimeout = 5 * time.Second
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Aggregator computes today's order statistics and broadcasts them while at
// least one client is subscribed to the hub.
type Aggregator struct {
	source Source
	hub    Hub
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewAggregator creates an aggregator
func NewAggregator(source Source, hub Hub, cfg Config) *Aggregator {
	return &Aggregator{
		source: source,
		hub:    hub,
		cfg:    cfg.withDefaults(),
		logger: log.WithComponent("analytics"),
	}
}

// Compute builds a snapshot for the calendar day containing now
func (a *Aggregator) Compute(ctx context.Context) (*types.AnalyticsSnapshot, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AnalyticsComputeDuration)

	now := a.cfg.Now().In(a.cfg.Location)
	midnight := StartOfDay(now)

	todayOrders, err := a.source.CountOrdersSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("count today's orders: %w", err)
	}

	revenue, err := a.source.SumTotalSince(ctx, midnight, types.OrderStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("sum today's revenue: %w", err)
	}

	pending, err := a.source.CountByStatus(ctx, types.ActiveStatuses...)
	if err != nil {
		return nil, fmt.Errorf("count pending orders: %w", err)
	}

	avg := decimal.Zero
	if todayOrders > 0 {
		avg = revenue.DivRound(decimal.NewFromInt(int64(todayOrders)), 2)
	}

	return &types.AnalyticsSnapshot{
		TodayOrders:   todayOrders,
		TodayRevenue:  revenue,
		AvgOrderValue: avg,
		PendingOrders: pending,
		ComputedAt:    now,
	}, nil
}

// StartOfDay returns local midnight of t's day in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Start hooks the aggregator to hub presence. Broadcasting begins when the
// first subscriber connects and ends when the last one leaves.
func (a *Aggregator) Start() {
	a.hub.OnPresence(func(active bool) {
		if active {
			a.activate()
		} else {
			a.deactivate()
		}
	})
	a.logger.Info().
		Dur("interval", a.cfg.Interval).
		Str("location", a.cfg.Location.String()).
		Msg("Analytics aggregator started")
}

// Stop halts broadcasting and waits for the loop to exit
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.stopped = true
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// Running reports whether the broadcast loop is active
func (a *Aggregator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// activate and deactivate run inside the hub's presence listener, so they
// must not block on the loop.
func (a *Aggregator) activate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || a.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Debug().Msg("First subscriber connected, starting analytics broadcast")
}

func (a *Aggregator) deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel == nil {
		return
	}
	a.cancel()
	a.cancel = nil
	a.logger.Debug().Msg("No subscribers left, stopping analytics broadcast")
}

func (a *Aggregator) loop(ctx context.Context) {
	defer a.wg.Done()

	sub := a.hub.Subscribe(events.Passive())
	defer a.hub.Unsubscribe(sub)

	// Initial snapshot for the client that just connected
	last := a.refresh(ctx)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			last = a.refresh(ctx)

		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Type == events.EventAnalyticsUpdate || debounceC != nil {
				continue
			}
			wait := a.cfg.MinRefresh - time.Since(last)
			if wait < 0 {
				wait = 0
			}
			debounce = time.NewTimer(wait)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			last = a.refresh(ctx)
		}
	}
}

// refresh computes and publishes one snapshot. Failures are logged and the
// previous snapshot stays current on clients.
func (a *Aggregator) refresh(ctx context.Context) time.Time {
	computeCtx, cancel := context.WithTimeout(ctx, a.cfg.ComputeTimeout)
	defer cancel()

	snap, err := a.Compute(computeCtx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn().Err(err).Msg("Failed to compute analytics")
		}
		return time.Now()
	}

	metrics.AnalyticsTodayOrders.Set(float64(snap.TodayOrders))
	metrics.AnalyticsTodayRevenue.Set(snap.TodayRevenue.InexactFloat64())
	metrics.AnalyticsPendingOrders.Set(float64(snap.PendingOrders))

	a.hub.Publish(events.EventAnalyticsUpdate, snap)
	a.logger.Debug().
		Int("today_orders", snap.TodayOrders).
		Str("today_revenue", snap.TodayRevenue.StringFixed(2)).
		Int("pending_orders", snap.PendingOrders).
		Msg("Analytics broadcast")
	return time.Now()
}
