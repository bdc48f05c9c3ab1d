package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/storage"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	return 0, errors.New("database is down")
}

func (failingSource) SumTotalSince(ctx context.Context, since time.Time, statuses ...types.OrderStatus) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (failingSource) CountByStatus(ctx context.Context, statuses ...types.OrderStatus) (int, error) {
	return 0, nil
}

var testDay = time.Date(2026, 5, 14, 15, 30, 0, 0, time.UTC)

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir(), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addOrder(t *testing.T, s storage.Store, created time.Time, status types.OrderStatus, total int64) {
	t.Helper()
	amount := decimal.NewFromInt(total)
	require.NoError(t, s.CreateOrder(context.Background(), &types.Order{
		ID:            uuid.NewString(),
		CustomerName:  "Priya",
		CustomerPhone: "+91 90000 00000",
		TotalAmount:   amount,
		Status:        status,
		CreatedAt:     created,
		Items:         []types.LineItem{{MenuItemID: "1", Quantity: 1, UnitPrice: amount}},
	}))
}

func TestComputeCountsOnlyCompletedRevenue(t *testing.T) {
	s := newStore(t)
	addOrder(t, s, testDay.Add(-3*time.Hour), types.OrderStatusPending, 100)
	addOrder(t, s, testDay.Add(-2*time.Hour), types.OrderStatusPending, 200)
	addOrder(t, s, testDay.Add(-1*time.Hour), types.OrderStatusCompleted, 300)

	a := NewAggregator(s, events.NewBroker(events.Config{}), Config{
		Location: time.UTC,
		Now:      func() time.Time { return testDay },
	})

	snap, err := a.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TodayOrders)
	assert.True(t, decimal.NewFromInt(300).Equal(snap.TodayRevenue), snap.TodayRevenue.String())
	assert.Equal(t, 2, snap.PendingOrders)
	assert.True(t, decimal.NewFromInt(100).Equal(snap.AvgOrderValue), snap.AvgOrderValue.String())
	assert.Equal(t, testDay, snap.ComputedAt)
}

func TestComputeUsesCalendarDay(t *testing.T) {
	s := newStore(t)
	// yesterday, still active
	addOrder(t, s, testDay.Add(-24*time.Hour), types.OrderStatusPreparing, 500)
	// yesterday, completed
	addOrder(t, s, testDay.Add(-20*time.Hour), types.OrderStatusCompleted, 700)
	addOrder(t, s, StartOfDay(testDay), types.OrderStatusCompleted, 50)

	now := testDay
	a := NewAggregator(s, events.NewBroker(events.Config{}), Config{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})

	snap, err := a.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TodayOrders)
	assert.True(t, decimal.NewFromInt(50).Equal(snap.TodayRevenue))
	assert.Equal(t, 1, snap.PendingOrders)

	// The day boundary is evaluated on each computation
	now = testDay.Add(24 * time.Hour)
	snap, err = a.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TodayOrders)
	assert.True(t, snap.TodayRevenue.IsZero())
	assert.True(t, snap.AvgOrderValue.IsZero())
}

func TestComputeRoundsAverage(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 3; i++ {
		addOrder(t, s, testDay.Add(-time.Hour), types.OrderStatusCompleted, 100)
	}
	addOrder(t, s, testDay.Add(-time.Hour), types.OrderStatusReady, 100)
	addOrder(t, s, testDay.Add(-time.Hour), types.OrderStatusReady, 100)
	addOrder(t, s, testDay.Add(-time.Hour), types.OrderStatusReady, 100)

	a := NewAggregator(s, events.NewBroker(events.Config{}), Config{
		Location: time.UTC,
		Now:      func() time.Time { return testDay },
	})

	snap, err := a.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "50", snap.AvgOrderValue.String())
	assert.Equal(t, 0, snap.PendingOrders)
}

func TestComputeError(t *testing.T) {
	a := NewAggregator(failingSource{}, events.NewBroker(events.Config{}), Config{})
	_, err := a.Compute(context.Background())
	assert.Error(t, err)
}

func TestStartOfDay(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	t0 := time.Date(2026, 5, 14, 0, 15, 0, 0, ist)

	assert.Equal(t, time.Date(2026, 5, 14, 0, 0, 0, 0, ist), StartOfDay(t0))
	assert.Equal(t, time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC), StartOfDay(t0.In(time.UTC)))
}

func waitForAnalytics(t *testing.T, sub *events.Subscription) *types.AnalyticsSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			require.True(t, ok)
			if ev.Type == events.EventAnalyticsUpdate {
				return ev.Payload.(*types.AnalyticsSnapshot)
			}
		case <-deadline:
			t.Fatal("no analytics_update received")
			return nil
		}
	}
}

func TestAggregatorRunsOnlyWithSubscribers(t *testing.T) {
	s := newStore(t)
	addOrder(t, s, time.Now(), types.OrderStatusPending, 100)

	broker := events.NewBroker(events.Config{})
	broker.Start()
	defer broker.Stop()

	a := NewAggregator(s, broker, Config{Interval: 50 * time.Millisecond, MinRefresh: 10 * time.Millisecond})
	a.Start()
	defer a.Stop()

	assert.False(t, a.Running())

	client := broker.Subscribe()
	assert.True(t, a.Running())

	// Immediate snapshot on connect
	snap := waitForAnalytics(t, client)
	assert.Equal(t, 1, snap.TodayOrders)
	assert.Equal(t, 1, snap.PendingOrders)

	// Periodic snapshots keep coming
	waitForAnalytics(t, client)

	broker.Unsubscribe(client)
	assert.False(t, a.Running())

	// A new connection cycle restarts the loop
	again := broker.Subscribe()
	defer broker.Unsubscribe(again)
	assert.True(t, a.Running())
	waitForAnalytics(t, again)
}

func TestAggregatorRefreshesOnOrderEvents(t *testing.T) {
	s := newStore(t)

	broker := events.NewBroker(events.Config{})
	broker.Start()
	defer broker.Stop()

	a := NewAggregator(s, broker, Config{Interval: time.Hour, MinRefresh: 10 * time.Millisecond})
	a.Start()
	defer a.Stop()

	client := broker.Subscribe()
	defer broker.Unsubscribe(client)

	first := waitForAnalytics(t, client)
	assert.Equal(t, 0, first.TodayOrders)

	addOrder(t, s, time.Now(), types.OrderStatusPending, 100)
	broker.Publish(events.EventOrderCreated, nil)

	second := waitForAnalytics(t, client)
	assert.Equal(t, 1, second.TodayOrders)
}

func TestAggregatorStopPreventsRestart(t *testing.T) {
	broker := events.NewBroker(events.Config{})
	broker.Start()
	defer broker.Stop()

	a := NewAggregator(newStore(t), broker, Config{})
	a.Start()
	a.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	assert.False(t, a.Running())
}
