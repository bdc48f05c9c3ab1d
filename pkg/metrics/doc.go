/*
Package metrics defines the Prometheus metrics of foodie and the component
health registry behind /health and /ready.

All metrics are registered with the default registry at package init and
exposed by Handler:

	Orders
	  foodie_orders_total{status}                      gauge, refreshed by Collector
	  foodie_orders_placed_total                       counter
	  foodie_order_transitions_total{from,to}          counter
	  foodie_order_transitions_rejected_total{reason}  counter

	Gateway
	  foodie_gateway_requests_total{method,kind}       counter, kind "ok" on success
	  foodie_gateway_request_duration_seconds{method}  histogram

	Hub
	  foodie_hub_subscribers                           gauge
	  foodie_hub_events_published_total{type}          counter
	  foodie_hub_events_dropped_total                  counter

	Analytics
	  foodie_analytics_today_orders                    gauge
	  foodie_analytics_today_revenue                   gauge
	  foodie_analytics_pending_orders                  gauge
	  foodie_analytics_compute_duration_seconds        histogram

	Relay and storage
	  foodie_relay_messages_total{result}              counter
	  foodie_store_pool_wait_seconds                   histogram
	  foodie_store_pool_timeouts_total                 counter

Timing an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.GatewayRequestDuration, "placeOrder")

# Health

HealthChecker tracks named components. A component is either set directly
(SetComponent) or refreshed by a Probe every time health is evaluated:

	hc := metrics.NewHealthChecker()
	hc.RegisterProbe(metrics.ComponentStorage, store.Ping)

Health is unhealthy when any known component is. Readiness only looks at the
critical components (storage, hub and gateway by default) and reports
not_ready until each of them has been registered and is healthy.
*/
package metrics
