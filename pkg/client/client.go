package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/foodie/pkg/gateway"
	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/orders"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// RPCPath is where the server mounts the command gateway
const RPCPath = "/api/rpc"

// ErrDegraded is returned when the circuit is open and no cached answer
// exists
var ErrDegraded = errors.New("server unavailable, client is in degraded mode")

// Options tunes a Client
type Options struct {
	// Timeout bounds a single HTTP round trip
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a trial call
	OpenTimeout time.Duration
	HTTPClient  *http.Client
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 3
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 15 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// Client talks JSON-RPC to a foodie server. Calls go through a circuit
// breaker; while it is open Menu serves the last menu it fetched.
type Client struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	nextID   atomic.Int64
	logger   zerolog.Logger

	mu       sync.RWMutex
	lastMenu []*types.MenuItem
}

// New creates a client for the server at baseURL (e.g. http://localhost:8080)
func New(baseURL string, opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + RPCPath,
		http:     opts.HTTPClient,
		logger:   log.WithComponent("client"),
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "foodie-rpc",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return c
}

// State reports the breaker state: closed, half-open or open
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Degraded reports whether calls are currently short-circuited
func (c *Client) Degraded() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// post sends one body through the breaker. Only transport failures and
// server errors count against the circuit; JSON-RPC error envelopes are
// normal answers.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("rpc request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read rpc response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("rpc request failed: %s", resp.Status)
		}
		return data, nil
	})
}

func (c *Client) newRequest(method gateway.Method, params any) (gateway.Request, error) {
	req := gateway.Request{
		JSONRPC: gateway.Version,
		Method:  string(method),
		ID:      json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10)),
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return req, fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

// rawResponse keeps result undecoded until the caller picks a type
type rawResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *gateway.Error  `json:"error"`
}

func (r rawResponse) decode(result any) error {
	if r.Error != nil {
		return r.Error
	}
	if result == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// Call invokes one command and decodes its result. A JSON-RPC error comes
// back as *gateway.Error.
func (c *Client) Call(ctx context.Context, method gateway.Method, params, result any) error {
	req, err := c.newRequest(method, params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	data, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	var resp rawResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("malformed rpc response: %w", err)
	}
	return resp.decode(result)
}

// BatchCall is one entry of a batch
type BatchCall struct {
	Method gateway.Method
	Params any
	// Result receives the decoded result; Err is set instead on failure
	Result any
	Err    error
}

// Batch sends every call in one request. The returned error covers the
// transport only; per-call failures land in each BatchCall.Err.
func (c *Client) Batch(ctx context.Context, calls []*BatchCall) error {
	if len(calls) == 0 {
		return nil
	}

	reqs := make([]gateway.Request, len(calls))
	byID := make(map[string]*BatchCall, len(calls))
	for i, call := range calls {
		req, err := c.newRequest(call.Method, call.Params)
		if err != nil {
			return err
		}
		reqs[i] = req
		byID[string(req.ID)] = call
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return err
	}
	data, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	var responses []rawResponse
	if err := json.Unmarshal(data, &responses); err != nil {
		return fmt.Errorf("malformed batch response: %w", err)
	}
	for _, resp := range responses {
		if call, ok := byID[string(resp.ID)]; ok {
			call.Err = resp.decode(call.Result)
			delete(byID, string(resp.ID))
		}
	}
	for _, call := range byID {
		call.Err = errors.New("no response for call")
	}
	return nil
}

// Menu fetches the catalog. While the server is unreachable the last
// fetched menu is returned instead of an error.
func (c *Client) Menu(ctx context.Context) ([]*types.MenuItem, error) {
	var menu []*types.MenuItem
	err := c.Call(ctx, gateway.MethodGetMenu, nil, &menu)
	if err == nil {
		c.mu.Lock()
		c.lastMenu = menu
		c.mu.Unlock()
		return menu, nil
	}

	var rpcErr *gateway.Error
	if errors.As(err, &rpcErr) {
		return nil, err
	}

	c.mu.RLock()
	cached := c.lastMenu
	c.mu.RUnlock()
	if cached != nil {
		c.logger.Warn().Err(err).Msg("Serving cached menu")
		return cached, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrDegraded
	}
	return nil, err
}

// PlaceOrder places an order and returns it as stored
func (c *Client) PlaceOrder(ctx context.Context, req orders.PlaceRequest) (*types.Order, error) {
	var order types.Order
	if err := c.Call(ctx, gateway.MethodPlaceOrder, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder fetches one order with its items
func (c *Client) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	return c.orderCall(ctx, gateway.MethodGetOrderStatus, map[string]string{"orderId": id})
}

// ListOrders lists orders newest first. An empty status lists all.
func (c *Client) ListOrders(ctx context.Context, status string, limit int) ([]*types.Order, error) {
	params := map[string]any{}
	if status != "" {
		params["status"] = status
	}
	if limit > 0 {
		params["limit"] = limit
	}

	var list []*types.Order
	if err := c.Call(ctx, gateway.MethodListOrders, params, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AcceptOrder moves a PENDING order to ACCEPTED
func (c *Client) AcceptOrder(ctx context.Context, id string) (*types.Order, error) {
	return c.orderCall(ctx, gateway.MethodAcceptOrder, map[string]string{"orderId": id})
}

// AdvanceOrder moves an order to status, which must be its next step
func (c *Client) AdvanceOrder(ctx context.Context, id, status string) (*types.Order, error) {
	return c.orderCall(ctx, gateway.MethodUpdateOrderStatus, map[string]string{"orderId": id, "status": status})
}

// ConfirmPayment records a payment reference on an order
func (c *Client) ConfirmPayment(ctx context.Context, id, ref string) (*types.Order, error) {
	return c.orderCall(ctx, gateway.MethodConfirmPayment, map[string]string{"orderId": id, "paymentRef": ref})
}

// Analytics fetches today's snapshot
func (c *Client) Analytics(ctx context.Context) (*types.AnalyticsSnapshot, error) {
	var snap types.AnalyticsSnapshot
	if err := c.Call(ctx, gateway.MethodGetAnalytics, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) orderCall(ctx context.Context, method gateway.Method, params any) (*types.Order, error) {
	var order types.Order
	if err := c.Call(ctx, method, params, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
