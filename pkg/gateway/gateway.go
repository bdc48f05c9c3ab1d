package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/metrics"
	"github.com/cuemby/foodie/pkg/orders"
	"github.com/cuemby/foodie/pkg/storage"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Orders is the order machine as seen by the gateway
type Orders interface {
	Place(ctx context.Context, req orders.PlaceRequest) (*types.Order, error)
	Accept(ctx context.Context, id string) (*types.Order, error)
	Advance(ctx context.Context, id string, target types.OrderStatus) (*types.Order, error)
	ConfirmPayment(ctx context.Context, id, ref string) (*types.Order, error)
	Get(ctx context.Context, id string) (*types.Order, error)
	List(ctx context.Context, filter storage.ListFilter) ([]*types.Order, error)
}

// Menu serves the catalog
type Menu interface {
	Menu(ctx context.Context) ([]*types.MenuItem, error)
}

// Analytics computes on-demand snapshots
type Analytics interface {
	Compute(ctx context.Context) (*types.AnalyticsSnapshot, error)
}

// Config tunes the gateway
type Config struct {
	// CommandTimeout bounds a single command
	CommandTimeout time.Duration
	// BatchConcurrency bounds how many entries of one batch run at once
	BatchConcurrency int
}

func (c Config) withDefaults() Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 8
	}
	return c
}

// Gateway dispatches JSON-RPC commands to the order machine, the catalog
// and the analytics aggregator.
type Gateway struct {
	orders    Orders
	menu      Menu
	analytics Analytics
	cfg       Config
	logger    zerolog.Logger
}

// New creates a gateway
func New(o Orders, menu Menu, analytics Analytics, cfg Config) *Gateway {
	return &Gateway{
		orders:    o,
		menu:      menu,
		analytics: analytics,
		cfg:       cfg.withDefaults(),
		logger:    log.WithComponent("gateway"),
	}
}

// placeOrderResult keeps the orderId field older clients read
type placeOrderResult struct {
	OrderID string `json:"orderId"`
	*types.Order
}

// Dispatch runs one request and always returns a response envelope
func (g *Gateway) Dispatch(ctx context.Context, req Request) Response {
	timer := metrics.NewTimer()
	resp := Response{JSONRPC: Version, ID: req.ID}

	label := req.Method
	method, known := ParseMethod(req.Method)
	if !known {
		label = "unknown"
	}

	result, rpcErr := g.dispatch(ctx, req, method, known)
	if rpcErr != nil {
		resp.Error = rpcErr
		metrics.GatewayRequestsTotal.WithLabelValues(label, string(rpcErr.Kind)).Inc()

		event := g.logger.Debug()
		if rpcErr.Kind == KindInternal || rpcErr.Kind == KindPersistence || rpcErr.Kind == KindTimeout {
			event = g.logger.Warn()
		}
		event.Str("method", req.Method).
			Str("kind", string(rpcErr.Kind)).
			Str("error", rpcErr.Message).
			Msg("Command failed")
	} else {
		resp.Result = result
		metrics.GatewayRequestsTotal.WithLabelValues(label, "ok").Inc()
	}

	timer.ObserveDurationVec(metrics.GatewayRequestDuration, label)
	return resp
}

func (g *Gateway) dispatch(ctx context.Context, req Request, method Method, known bool) (any, *Error) {
	if req.JSONRPC != Version {
		return nil, newError(KindInvalidRequest, fmt.Sprintf("jsonrpc must be %q", Version))
	}
	if req.Method == "" {
		return nil, newError(KindInvalidRequest, "method is required")
	}
	if !known {
		return nil, newError(KindMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.CommandTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := g.call(ctx, method, req.Params)
		done <- outcome{result, err}
	}()

	// The command keeps running after a timeout; a store write that was
	// already issued may still commit.
	select {
	case out := <-done:
		if out.err == nil {
			return out.result, nil
		}
		rpcErr := classify(out.err)
		if rpcErr.Kind == KindInternal || rpcErr.Kind == KindPersistence {
			g.logger.Error().Err(out.err).Str("method", req.Method).Msg("Command error")
		}
		return nil, rpcErr
	case <-ctx.Done():
		return nil, classify(ctx.Err())
	}
}

// call is the exhaustive command switch
func (g *Gateway) call(ctx context.Context, method Method, params json.RawMessage) (any, error) {
	switch method {
	case MethodGetMenu:
		return g.menu.Menu(ctx)

	case MethodPlaceOrder:
		var p orders.PlaceRequest
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		order, err := g.orders.Place(ctx, p)
		if err != nil {
			return nil, err
		}
		return placeOrderResult{OrderID: order.ID, Order: order}, nil

	case MethodGetOrderStatus:
		var p orderIDParams
		if err := decodeOrderID(params, &p); err != nil {
			return nil, err
		}
		return g.orders.Get(ctx, p.OrderID)

	case MethodListOrders:
		var p listOrdersParams
		if len(params) > 0 {
			if err := decodeParams(params, &p); err != nil {
				return nil, err
			}
		}
		filter := storage.ListFilter{Limit: p.Limit}
		if p.Status != "" {
			status, err := types.ParseOrderStatus(p.Status)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", orders.ErrUnknownStatus, p.Status)
			}
			filter.Status = &status
		}
		return g.orders.List(ctx, filter)

	case MethodAcceptOrder:
		var p orderIDParams
		if err := decodeOrderID(params, &p); err != nil {
			return nil, err
		}
		return g.orders.Accept(ctx, p.OrderID)

	case MethodUpdateOrderStatus:
		var p updateStatusParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.OrderID == "" || p.Status == "" {
			return nil, newError(KindInvalidParams, "orderId and status are required")
		}
		target, err := types.ParseOrderStatus(p.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", orders.ErrUnknownStatus, p.Status)
		}
		return g.orders.Advance(ctx, p.OrderID, target)

	case MethodConfirmPayment:
		var p confirmPaymentParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.OrderID == "" {
			return nil, newError(KindInvalidParams, "orderId is required")
		}
		return g.orders.ConfirmPayment(ctx, p.OrderID, p.PaymentRef)

	case MethodGetAnalytics:
		return g.analytics.Compute(ctx)
	}

	return nil, newError(KindMethodNotFound, fmt.Sprintf("method %q not found", method))
}

func decodeParams(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return newError(KindInvalidParams, "params are required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newError(KindInvalidParams, "malformed params: "+err.Error())
	}
	return nil
}

func decodeOrderID(raw json.RawMessage, p *orderIDParams) error {
	if err := decodeParams(raw, p); err != nil {
		return err
	}
	if p.OrderID == "" {
		return newError(KindInvalidParams, "orderId is required")
	}
	return nil
}

// DispatchBatch runs every request independently and returns the responses
// in input order.
func (g *Gateway) DispatchBatch(ctx context.Context, reqs []Request) []Response {
	responses := make([]Response, len(reqs))

	var eg errgroup.Group
	eg.SetLimit(g.cfg.BatchConcurrency)
	for i := range reqs {
		i := i
		eg.Go(func() error {
			responses[i] = g.Dispatch(ctx, reqs[i])
			return nil
		})
	}
	eg.Wait()

	return responses
}
