package storage

import (
	"context"
	"time"

	"github.com/cuemby/foodie/pkg/types"
	"github.com/shopspring/decimal"
)

// DefaultListLimit is used when a ListFilter does not set a limit
const DefaultListLimit = 50

// ListFilter narrows ListOrders results
type ListFilter struct {
	Status *types.OrderStatus
	Limit  int
}

// Store defines the interface for order and menu persistence.
// The store is a dumb persistence layer: it never decides whether a status
// transition is legal, it only applies conditional updates.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, order *types.Order) error
	GetOrder(ctx context.Context, id string) (*types.Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]*types.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to types.OrderStatus) (*types.Order, error)
	SetPaymentRef(ctx context.Context, id, ref string) (*types.Order, error)

	// Aggregates
	CountOrdersSince(ctx context.Context, since time.Time) (int, error)
	SumTotalSince(ctx context.Context, since time.Time, statuses ...types.OrderStatus) (decimal.Decimal, error)
	CountByStatus(ctx context.Context, statuses ...types.OrderStatus) (int, error)

	// Menu
	PutMenuItem(ctx context.Context, item *types.MenuItem) error
	GetMenuItem(ctx context.Context, id string) (*types.MenuItem, error)
	ListMenu(ctx context.Context) ([]*types.MenuItem, error)

	// Utility
	Ping(ctx context.Context) error
	Close() error
}

// Options tunes the shared connection budget of a store
type Options struct {
	// MaxConns bounds concurrent store operations
	MaxConns int
	// AcquireTimeout bounds how long an operation waits for a free slot
	AcquireTimeout time.Duration
	// Now overrides the clock used for timestamps (tests)
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = 10
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f ListFilter) matches(o *types.Order) bool {
	return f.Status == nil || o.Status == *f.Status
}

func containsStatus(statuses []types.OrderStatus, s types.OrderStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func statusStrings(statuses []types.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
