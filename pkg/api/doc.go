/*
Package api is the network front door of a foodie server.

One HTTP listener carries every client-facing route:

	POST /api/rpc   JSON-RPC 2.0 commands (pkg/gateway)
	GET  /ws        live order and analytics events (pkg/stream)
	GET  /health    component health, 503 when a probe fails
	GET  /ready     readiness of storage and the hub
	GET  /live      process liveness
	GET  /metrics   Prometheus exposition

Requests pass through chi's RequestID, RealIP and Recoverer middleware, a
zerolog access logger, and otelhttp instrumentation.

When Config.GRPCHealthAddr is set a second listener serves the standard
grpc.health.v1 service for orchestrators. Its status for "" and "foodie"
follows HealthChecker readiness, re-evaluated every Config.ReadinessInterval.

Run blocks until its context is canceled and then drains both listeners
within Config.ShutdownTimeout.
*/
package api
