package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money travels as JSON numbers for every importer of this package
	decimal.MarshalJSONWithoutQuotes = true
}

// OrderStatus represents the current stage of an order in the kitchen
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusAccepted  OrderStatus = "ACCEPTED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

// StatusSequence is the total order of statuses. An order only ever moves
// forward through it, one step at a time.
var StatusSequence = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusCompleted,
}

// ActiveStatuses are the statuses counted as "pending" work for the kitchen
var ActiveStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusPreparing,
}

// ParseOrderStatus converts a string into an OrderStatus. Matching is
// exact; unknown values return an error.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the defined statuses
func (s OrderStatus) Valid() bool {
	return s.index() >= 0
}

// Next returns the immediate successor of s. The second return value is
// false for COMPLETED and for unknown statuses.
func (s OrderStatus) Next() (OrderStatus, bool) {
	i := s.index()
	if i < 0 || i+1 >= len(StatusSequence) {
		return "", false
	}
	return StatusSequence[i+1], true
}

// IsTerminal reports whether no transition leaves s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted
}

// IsActive reports whether s is still waiting on the kitchen
func (s OrderStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Before reports whether s comes strictly before other in StatusSequence
func (s OrderStatus) Before(other OrderStatus) bool {
	i, j := s.index(), other.index()
	return i >= 0 && j >= 0 && i < j
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) index() int {
	for i, v := range StatusSequence {
		if v == s {
			return i
		}
	}
	return -1
}

// Customer identifies who placed an order
type Customer struct {
	Name    string `json:"name" yaml:"name"`
	Phone   string `json:"phone" yaml:"phone"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
}

// MenuItem is a catalog entry. Prices are read at placement time only.
type MenuItem struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
	Category string          `json:"category" yaml:"category"`
	ImageURL string          `json:"image_url,omitempty" yaml:"image_url,omitempty"`
}

// LineItem is one row of an order. UnitPrice is a snapshot of the catalog
// price when the order was placed.
type LineItem struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name,omitempty"`
	Quantity   int             `json:"qty"`
	UnitPrice  decimal.Decimal `json:"price"`
}

// Subtotal returns quantity × unit price
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Order represents a customer order and its line items
type Order struct {
	ID              string          `json:"id"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerAddress string          `json:"customer_address,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	PaymentRef      string          `json:"payment_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []LineItem      `json:"items"`
}

// ComputeTotal sums the subtotals of items
func ComputeTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Clone returns a deep copy of the order so callers can hand snapshots to
// other goroutines.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	return &c
}

// AnalyticsSnapshot is a derived view over today's orders. It is recomputed
// on demand and never persisted.
type AnalyticsSnapshot struct {
	TodayOrders   int             `json:"todayOrders"`
	TodayRevenue  decimal.Decimal `json:"todayRevenue"`
	AvgOrderValue decimal.Decimal `json:"avgOrderValue"`
	PendingOrders int             `json:"pendingOrders"`
	ComputedAt    time.Time       `json:"computedAt"`
}
