/*
Package types defines the core data structures shared by every foodie package.

The order status enumeration and its total order live here and nowhere else:
the state machine, the stores, the gateway, the analytics aggregator and the
CLI all consume StatusSequence and the OrderStatus helpers instead of
redeclaring the list.

# Order Lifecycle

	PENDING ──accept──▶ ACCEPTED ──▶ PREPARING ──▶ READY ──▶ COMPLETED

PENDING is entered only by placing an order. COMPLETED is terminal. Every
other move is a single step forward; OrderStatus.Next returns that step.

# Core Types

  - Order: header fields plus the ordered LineItem slice
  - LineItem: menu item reference, quantity and the unit price snapshot
  - MenuItem: catalog entry used at placement time
  - Customer: name, phone, optional address
  - AnalyticsSnapshot: today's counters, recomputed on demand

Money is represented with shopspring/decimal so totals are exact:

	items := []types.LineItem{
		{MenuItemID: "1", Quantity: 3, UnitPrice: decimal.NewFromInt(100)},
	}
	total := types.ComputeTotal(items) // 300

# JSON

Field names follow the wire format used by the kitchen and tracking pages
(customer_name, total_amount, qty, price). AnalyticsSnapshot uses camelCase
keys (todayOrders, todayRevenue) because the analytics dashboard expects them.

Importing this package sets decimal.MarshalJSONWithoutQuotes, so money
amounts encode as JSON numbers (300, 24.5) rather than quoted strings in
every binary and test that uses these types.
*/
package types
