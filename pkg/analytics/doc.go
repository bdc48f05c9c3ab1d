/*
Package analytics computes and broadcasts today's order statistics.

A snapshot contains:

	todayOrders    orders created since local midnight
	todayRevenue   sum of totals of today's COMPLETED orders
	avgOrderValue  todayRevenue / todayOrders, 0 when there are no orders
	pendingOrders  orders in PENDING, ACCEPTED or PREPARING (any day)

"Today" is recomputed on every snapshot, so a long running process rolls
over at midnight without restarting.

The Aggregator listens to hub presence. When the first client subscribes it
publishes a snapshot immediately and then every Config.Interval. Order events
trigger an extra snapshot, at most one per Config.MinRefresh. When the last
client leaves the loop stops; nothing is computed while nobody is watching.
Snapshot values are also exported as Prometheus gauges.
*/
package analytics
