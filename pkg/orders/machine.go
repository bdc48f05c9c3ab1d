package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/metrics"
	"github.com/cuemby/foodie/pkg/storage"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher is the part of the notification hub the machine needs
type Publisher interface {
	Publish(eventType events.EventType, payload any)
}

// PriceBook resolves menu items to their current price
type PriceBook interface {
	Item(ctx context.Context, id string) (*types.MenuItem, error)
}

// ItemRequest is one cart line of a placement
type ItemRequest struct {
	MenuItemID string `json:"menu_item_id" yaml:"menu_item_id"`
	Quantity   int    `json:"qty" yaml:"qty"`
}

// PlaceRequest is the input of Place
type PlaceRequest struct {
	Customer      types.Customer `json:"customer" yaml:"customer"`
	Items         []ItemRequest  `json:"items" yaml:"items"`
	PaymentMethod string         `json:"paymentMethod,omitempty" yaml:"payment_method,omitempty"`
}

// Machine owns every order mutation. It checks that each status change is
// the next step of the lifecycle, persists it, and then announces it on the
// hub.
type Machine struct {
	store  storage.Store
	prices PriceBook
	hub    Publisher
	locks  *keyedMutex
	logger zerolog.Logger
}

// NewMachine creates a state machine
func NewMachine(store storage.Store, prices PriceBook, hub Publisher) *Machine {
	return &Machine{
		store:  store,
		prices: prices,
		hub:    hub,
		locks:  newKeyedMutex(),
		logger: log.WithComponent("orders"),
	}
}

// Place validates and prices a new order and stores it as PENDING
func (m *Machine) Place(ctx context.Context, req PlaceRequest) (*types.Order, error) {
	if err := validatePlacement(req); err != nil {
		return nil, err
	}

	items := make([]types.LineItem, 0, len(req.Items))
	for _, r := range req.Items {
		menuItem, err := m.prices.Item(ctx, r.MenuItemID)
		if err != nil {
			return nil, err
		}
		items = append(items, types.LineItem{
			MenuItemID: menuItem.ID,
			Name:       menuItem.Name,
			Quantity:   r.Quantity,
			UnitPrice:  menuItem.Price,
		})
	}

	order := &types.Order{
		ID:              uuid.New().String(),
		CustomerName:    strings.TrimSpace(req.Customer.Name),
		CustomerPhone:   strings.TrimSpace(req.Customer.Phone),
		CustomerAddress: strings.TrimSpace(req.Customer.Address),
		TotalAmount:     types.ComputeTotal(items),
		Status:          types.OrderStatusPending,
		PaymentMethod:   req.PaymentMethod,
		Items:           items,
	}

	if err := m.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	metrics.OrdersPlaced.Inc()
	logger := log.WithOrderID(order.ID)
	logger.Info().
		Str("total", order.TotalAmount.StringFixed(2)).
		Int("items", len(order.Items)).
		Msg("Order placed")

	m.hub.Publish(events.EventOrderCreated, order.Clone())
	return order, nil
}

func validatePlacement(req PlaceRequest) error {
	if strings.TrimSpace(req.Customer.Name) == "" {
		return validationErr("customer name is required")
	}
	if strings.TrimSpace(req.Customer.Phone) == "" {
		return validationErr("customer phone is required")
	}
	if len(req.Items) == 0 {
		return validationErr("order has no items")
	}
	for i, item := range req.Items {
		if item.MenuItemID == "" {
			return validationErr("item %d has no menu_item_id", i)
		}
		if item.Quantity <= 0 {
			return validationErr("item %d has non-positive quantity %d", i, item.Quantity)
		}
	}
	return nil
}

// Accept moves a PENDING order to ACCEPTED
func (m *Machine) Accept(ctx context.Context, id string) (*types.Order, error) {
	return m.move(ctx, id, types.OrderStatusAccepted, func(from types.OrderStatus) bool {
		return from == types.OrderStatusPending
	})
}

// Advance moves an accepted order one step forward. target must be the
// immediate successor of the current status; PENDING orders can only leave
// through Accept.
func (m *Machine) Advance(ctx context.Context, id string, target types.OrderStatus) (*types.Order, error) {
	if !target.Valid() {
		metrics.OrderTransitionsRejected.WithLabelValues("unknown_status").Inc()
		return nil, unknownStatus(target)
	}
	return m.move(ctx, id, target, func(from types.OrderStatus) bool {
		if from == types.OrderStatusPending {
			return false
		}
		next, ok := from.Next()
		return ok && next == target
	})
}

// move applies a guarded status change under the order's lock. The store's
// conditional update catches writers outside this process.
func (m *Machine) move(ctx context.Context, id string, to types.OrderStatus, legal func(from types.OrderStatus) bool) (*types.Order, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	current, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	from := current.Status
	if !legal(from) {
		metrics.OrderTransitionsRejected.WithLabelValues("invalid_transition").Inc()
		m.logger.Debug().
			Str("order_id", id).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Transition rejected")
		return nil, &TransitionError{OrderID: id, From: from, To: to}
	}

	updated, err := m.store.UpdateStatus(ctx, id, from, to)
	if err != nil {
		var conflict *storage.StatusConflictError
		if errors.As(err, &conflict) {
			metrics.OrderTransitionsRejected.WithLabelValues("conflict").Inc()
			return nil, &TransitionError{OrderID: id, From: conflict.Actual, To: to}
		}
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
	logger := log.WithOrderID(id)
	logger.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Order status changed")

	// Published before unlock so events for one order leave in commit order
	m.hub.Publish(events.EventOrderUpdated, updated.Clone())
	return updated, nil
}

// ConfirmPayment records a payment reference. Status is unchanged.
func (m *Machine) ConfirmPayment(ctx context.Context, id, ref string) (*types.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, validationErr("payment reference is required")
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	updated, err := m.store.SetPaymentRef(ctx, id, ref)
	if err != nil {
		return nil, err
	}

	logger := log.WithOrderID(id)
	logger.Info().Str("payment_ref", ref).Msg("Payment confirmed")

	m.hub.Publish(events.EventOrderUpdated, updated.Clone())
	return updated, nil
}

// Get returns one order
func (m *Machine) Get(ctx context.Context, id string) (*types.Order, error) {
	return m.store.GetOrder(ctx, id)
}

// List returns orders newest first
func (m *Machine) List(ctx context.Context, filter storage.ListFilter) ([]*types.Order, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, unknownStatus(*filter.Status)
	}
	if filter.Limit < 0 {
		return nil, validationErr("limit must not be negative")
	}
	return m.store.ListOrders(ctx, filter)
}
