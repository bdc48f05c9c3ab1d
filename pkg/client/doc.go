/*
Package client is the Go client of a foodie server, used by the foodie CLI.

Client sends JSON-RPC commands to /api/rpc, one at a time or as a batch:

	c := client.New("http://localhost:8080", client.Options{})
	order, err := c.PlaceOrder(ctx, req)
	var rpcErr *gateway.Error
	if errors.As(err, &rpcErr) && rpcErr.Kind == gateway.KindValidation {
		...
	}

Every call passes through a circuit breaker. After Options.FailureThreshold
consecutive transport failures or non-200 answers the circuit opens and calls
fail fast with gobreaker.ErrOpenState until Options.OpenTimeout passes and a
trial call succeeds. JSON-RPC error envelopes are answers and never trip the
circuit. While degraded, Menu returns the last menu it fetched.

Watcher follows /ws. When the connection drops it redials after 1s, 2s, 4s
and so on, giving up after MaxReconnectAttempts consecutive failures. Events
missed while disconnected are not replayed; OnReconnect runs before any new
event is delivered so callers can re-query state. An application ping is sent
every 30s.
*/
package client
