/*
Package gateway is the JSON-RPC 2.0 command surface of foodie.

Commands:

	getMenu                                   catalog, cached
	placeOrder        {customer, items}       new PENDING order
	getOrderStatus    {orderId}               one order with items
	listOrders        {status?, limit?}       newest first
	acceptOrder       {orderId}               PENDING -> ACCEPTED
	updateOrderStatus {orderId, status}       one step forward
	confirmPayment    {orderId, paymentRef}   records a payment reference
	getAnalytics                              today's snapshot

A request body is either one request object or a non-empty array of them.
Batch entries run concurrently and independently; a failing entry never
affects its siblings and responses come back in input order. The HTTP status
is always 200 and failures travel in the error member:

	{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"kind":"InvalidTransition","message":"..."}}

Kind is the precise reason (ValidationError, InvalidTransition, UnknownStatus,
NotFound, PersistenceError, Timeout, ...). Each command runs under
Config.CommandTimeout.
*/
package gateway
