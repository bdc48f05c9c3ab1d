package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/foodie/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing timestamps so creation order is
// unambiguous on every backend.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestOrder(status types.OrderStatus, total string) *types.Order {
	price := decimal.RequireFromString(total)
	return &types.Order{
		ID:            uuid.NewString(),
		CustomerName:  "Asha",
		CustomerPhone: "+91-9000000000",
		TotalAmount:   price,
		Status:        status,
		PaymentMethod: "cash",
		Items: []types.LineItem{
			{MenuItemID: "burger-classic", Name: "Classic Burger", Quantity: 1, UnitPrice: price},
		},
	}
}

// runStoreSuite exercises the behaviour every Store implementation shares
func runStoreSuite(t *testing.T, newStore func(t *testing.T, now func() time.Time) Store) {
	ctx := context.Background()

	t.Run("create and get round-trips items", func(t *testing.T) {
		s := newStore(t, newFakeClock(time.Now()).Now)

		order := newTestOrder(types.OrderStatusPending, "0")
		order.Items = []types.LineItem{
			{MenuItemID: "burger-classic", Name: "Classic Burger", Quantity: 2, UnitPrice: decimal.RequireFromString("1065")},
			{MenuItemID: "coke", Name: "Coca Cola", Quantity: 1, UnitPrice: decimal.RequireFromString("245")},
		}
		order.TotalAmount = types.ComputeTotal(order.Items)
		require.NoError(t, s.CreateOrder(ctx, order))

		got, err := s.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
		assert.Equal(t, types.OrderStatusPending, got.Status)
		assert.True(t, decimal.RequireFromString("2375").Equal(got.TotalAmount))
		require.Len(t, got.Items, 2)
		assert.Equal(t, "burger-classic", got.Items[0].MenuItemID)
		assert.Equal(t, 2, got.Items[0].Quantity)
		assert.Equal(t, "coke", got.Items[1].MenuItemID)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("get unknown order", func(t *testing.T) {
		s := newStore(t, nil)

		_, err := s.GetOrder(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetOrder(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list is newest first with limit and filter", func(t *testing.T) {
		s := newStore(t, newFakeClock(time.Now()).Now)

		var ids []string
		for i := 0; i < 5; i++ {
			status := types.OrderStatusPending
			if i%2 == 1 {
				status = types.OrderStatusReady
			}
			o := newTestOrder(status, "100")
			require.NoError(t, s.CreateOrder(ctx, o))
			ids = append(ids, o.ID)
		}

		all, err := s.ListOrders(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, ids[4], all[0].ID)
		assert.Equal(t, ids[0], all[4].ID)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
		}

		limited, err := s.ListOrders(ctx, ListFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, ids[4], limited[0].ID)
		assert.Equal(t, ids[3], limited[1].ID)

		ready := types.OrderStatusReady
		filtered, err := s.ListOrders(ctx, ListFilter{Status: &ready})
		require.NoError(t, err)
		require.Len(t, filtered, 2)
		for _, o := range filtered {
			assert.Equal(t, types.OrderStatusReady, o.Status)
			assert.Len(t, o.Items, 1)
		}
	})

	t.Run("list empty store", func(t *testing.T) {
		s := newStore(t, nil)

		orders, err := s.ListOrders(ctx, ListFilter{})
		require.NoError(t, err)
		assert.NotNil(t, orders)
		assert.Empty(t, orders)
	})

	t.Run("conditional status update", func(t *testing.T) {
		s := newStore(t, newFakeClock(time.Now()).Now)

		order := newTestOrder(types.OrderStatusPending, "50")
		require.NoError(t, s.CreateOrder(ctx, order))

		updated, err := s.UpdateStatus(ctx, order.ID, types.OrderStatusPending, types.OrderStatusAccepted)
		require.NoError(t, err)
		assert.Equal(t, types.OrderStatusAccepted, updated.Status)
		assert.True(t, updated.UpdatedAt.After(order.CreatedAt))
		assert.Len(t, updated.Items, 1)

		_, err = s.UpdateStatus(ctx, order.ID, types.OrderStatusPending, types.OrderStatusAccepted)
		require.ErrorIs(t, err, ErrStatusConflict)
		var conflict *StatusConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, types.OrderStatusAccepted, conflict.Actual)

		_, err = s.UpdateStatus(ctx, uuid.NewString(), types.OrderStatusPending, types.OrderStatusAccepted)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent conditional updates have one winner", func(t *testing.T) {
		s := newStore(t, nil)

		order := newTestOrder(types.OrderStatusPending, "50")
		require.NoError(t, s.CreateOrder(ctx, order))

		const writers = 8
		var wg sync.WaitGroup
		results := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpdateStatus(ctx, order.ID, types.OrderStatusPending, types.OrderStatusAccepted)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, ErrStatusConflict)
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("payment reference", func(t *testing.T) {
		s := newStore(t, nil)

		order := newTestOrder(types.OrderStatusReady, "50")
		require.NoError(t, s.CreateOrder(ctx, order))

		updated, err := s.SetPaymentRef(ctx, order.ID, "UPI-123")
		require.NoError(t, err)
		assert.Equal(t, "UPI-123", updated.PaymentRef)
		assert.Equal(t, types.OrderStatusReady, updated.Status)

		_, err = s.SetPaymentRef(ctx, uuid.NewString(), "UPI-999")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("aggregates", func(t *testing.T) {
		clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
		s := newStore(t, clock.Now)

		old := newTestOrder(types.OrderStatusCompleted, "999")
		old.CreatedAt = time.Date(2026, 2, 28, 22, 0, 0, 0, time.UTC)
		require.NoError(t, s.CreateOrder(ctx, old))

		for _, o := range []*types.Order{
			newTestOrder(types.OrderStatusCompleted, "100"),
			newTestOrder(types.OrderStatusCompleted, "200"),
			newTestOrder(types.OrderStatusPending, "50"),
		} {
			require.NoError(t, s.CreateOrder(ctx, o))
		}

		midnight := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		count, err := s.CountOrdersSince(ctx, midnight)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		revenue, err := s.SumTotalSince(ctx, midnight, types.OrderStatusCompleted)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("300").Equal(revenue), revenue.String())

		all, err := s.SumTotalSince(ctx, midnight)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("350").Equal(all), all.String())

		active, err := s.CountByStatus(ctx, types.ActiveStatuses...)
		require.NoError(t, err)
		assert.Equal(t, 1, active)
	})

	t.Run("aggregates on empty store", func(t *testing.T) {
		s := newStore(t, nil)

		count, err := s.CountOrdersSince(ctx, time.Time{})
		require.NoError(t, err)
		assert.Zero(t, count)

		sum, err := s.SumTotalSince(ctx, time.Time{}, types.OrderStatusCompleted)
		require.NoError(t, err)
		assert.True(t, sum.IsZero())
	})

	t.Run("menu", func(t *testing.T) {
		s := newStore(t, nil)

		items := []*types.MenuItem{
			{ID: "coke", Name: "Coca Cola", Price: decimal.RequireFromString("245"), Category: "Drinks"},
			{ID: "burger-classic", Name: "Classic Burger", Price: decimal.RequireFromString("1065"), Category: "Burgers"},
			{ID: "burger-cheese", Name: "Cheese Burger", Price: decimal.RequireFromString("1150"), Category: "Burgers"},
		}
		for _, item := range items {
			require.NoError(t, s.PutMenuItem(ctx, item))
		}

		menu, err := s.ListMenu(ctx)
		require.NoError(t, err)
		require.Len(t, menu, 3)
		assert.Equal(t, "burger-cheese", menu[0].ID)
		assert.Equal(t, "burger-classic", menu[1].ID)
		assert.Equal(t, "coke", menu[2].ID)

		got, err := s.GetMenuItem(ctx, "coke")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("245").Equal(got.Price))

		// upsert
		require.NoError(t, s.PutMenuItem(ctx, &types.MenuItem{
			ID: "coke", Name: "Coca Cola", Price: decimal.RequireFromString("250"), Category: "Drinks",
		}))
		got, err = s.GetMenuItem(ctx, "coke")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("250").Equal(got.Price))

		_, err = s.GetMenuItem(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t, nil)
		assert.NoError(t, s.Ping(ctx))
	})
}
