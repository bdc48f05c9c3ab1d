/*
Package orders implements the order lifecycle state machine.

Every order moves through a fixed sequence:

	PENDING ──accept──► ACCEPTED ──► PREPARING ──► READY ──► COMPLETED

Place creates orders in PENDING. Accept is the only way out of PENDING;
Advance then moves the order one step at a time. Skipping a step, going
backwards or moving a COMPLETED order fails with ErrInvalidTransition. A
target outside the sequence fails with ErrUnknownStatus. ConfirmPayment
records a payment reference without touching the status.

# Pricing

Place ignores any client-side price. Each line is priced from the catalog
at placement time and the price is stored with the line, so later menu
changes do not alter existing orders.

# Concurrency

Mutations of one order are serialized by a per-order mutex held across the
read, the legality check, the conditional store update and the event
publish. Two concurrent accepts of the same order therefore produce exactly
one success; the other caller sees ErrInvalidTransition. The store's
conditional update (UPDATE ... WHERE status = from) covers writers in other
processes sharing the same database.

Because the event is published before the lock is released, subscribers see
events for a given order in the order the changes were committed.

# Events

	Place          → order_created  (payload: *types.Order)
	Accept         → order_updated
	Advance        → order_updated
	ConfirmPayment → order_updated

Publishing never fails the command.
*/
package orders
