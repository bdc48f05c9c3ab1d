package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Order metrics
	OrdersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foodie_orders_total",
			Help: "Total number of stored orders by status",
		},
		[]string{"status"},
	)

	OrdersPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foodie_orders_placed_total",
			Help: "Total number of orders placed",
		},
	)

	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodie_order_transitions_total",
			Help: "Total number of applied status transitions by source and target status",
		},
		[]string{"from", "to"},
	)

	OrderTransitionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodie_order_transitions_rejected_total",
			Help: "Total number of rejected status transitions by reason",
		},
		[]string{"reason"},
	)

	// Gateway metrics
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodie_gateway_requests_total",
			Help: "Total number of gateway commands by method and result kind",
		},
		[]string{"method", "kind"},
	)

	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foodie_gateway_request_duration_seconds",
			Help:    "Gateway command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Hub metrics
	HubSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foodie_hub_subscribers",
			Help: "Number of currently connected subscribers",
		},
	)

	HubEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodie_hub_events_published_total",
			Help: "Total number of events published by type",
		},
		[]string{"type"},
	)

	HubEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foodie_hub_events_dropped_total",
			Help: "Total number of events dropped because a subscriber buffer was full",
		},
	)

	// Analytics metrics
	AnalyticsTodayOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foodie_analytics_today_orders",
			Help: "Orders created since local midnight",
		},
	)

	AnalyticsTodayRevenue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foodie_analytics_today_revenue",
			Help: "Revenue of completed orders created since local midnight",
		},
	)

	AnalyticsPendingOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foodie_analytics_pending_orders",
			Help: "Orders in PENDING, ACCEPTED or PREPARING",
		},
	)

	AnalyticsComputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foodie_analytics_compute_duration_seconds",
			Help:    "Time taken to compute an analytics snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Relay metrics
	RelayMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodie_relay_messages_total",
			Help: "Total number of hub events relayed to Kafka by result",
		},
		[]string{"result"},
	)

	// Storage metrics
	StorePoolWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foodie_store_pool_wait_seconds",
			Help:    "Time spent waiting for a store connection slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorePoolTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foodie_store_pool_timeouts_total",
			Help: "Total number of store operations that gave up waiting for a slot",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(OrdersTotal)
	prometheus.MustRegister(OrdersPlaced)
	prometheus.MustRegister(OrderTransitions)
	prometheus.MustRegister(OrderTransitionsRejected)
	prometheus.MustRegister(GatewayRequestsTotal)
	prometheus.MustRegister(GatewayRequestDuration)
	prometheus.MustRegister(HubSubscribers)
	prometheus.MustRegister(HubEventsPublished)
	prometheus.MustRegister(HubEventsDropped)
	prometheus.MustRegister(AnalyticsTodayOrders)
	prometheus.MustRegister(AnalyticsTodayRevenue)
	prometheus.MustRegister(AnalyticsPendingOrders)
	prometheus.MustRegister(AnalyticsComputeDuration)
	prometheus.MustRegister(RelayMessagesTotal)
	prometheus.MustRegister(StorePoolWaitDuration)
	prometheus.MustRegister(StorePoolTimeouts)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in a histogram
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a histogram vector
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
