/*
Package storage persists orders and the menu for the foodie order coordinator.

The package defines the Store interface and two implementations: BoltStore,
an embedded single-file database for single-node deployments and tests, and
PostgresStore for shared deployments. Both are plain persistence layers. They
never decide whether a status change is legal; that is the job of the orders
package. What they do guarantee is that a status change is conditional on the
current status, so two writers racing on the same order cannot both win.

# Architecture

	┌──────────────────────── STORAGE ─────────────────────────┐
	│                                                            │
	│   orders.Machine / analytics.Aggregator / catalog          │
	│                     │                                      │
	│                     ▼                                      │
	│  ┌────────────────────────────────────────────┐           │
	│  │                 Store                       │           │
	│  └───────┬───────────────────────────┬────────┘           │
	│          │                           │                     │
	│  ┌───────▼────────┐        ┌─────────▼─────────┐           │
	│  │   BoltStore    │        │   PostgresStore   │           │
	│  │ <dir>/foodie.db│        │  database/sql+pq  │           │
	│  └───────┬────────┘        └─────────┬─────────┘           │
	│          │                           │                     │
	│          └─────────────┬─────────────┘                     │
	│                        ▼                                   │
	│               Pool (semaphore, timeout)                    │
	└────────────────────────────────────────────────────────────┘

# BoltDB layout

	orders                  order ID → JSON header (no items)
	order_items/<order ID>  sequence → JSON line item
	orders_by_created_at    UnixNano(created_at) ‖ order ID → order ID
	menu_items              menu item ID → JSON menu item

A placement writes the header, every line item and the index entry inside a
single db.Update, so readers see either the whole order or nothing. Listing
walks orders_by_created_at backwards, which yields newest-first order without
sorting.

# PostgreSQL layout

The schema is embedded and applied with golang-migrate on startup
(migration table foodie_schema_migrations):

	menu_items  (id, name, price, category, image_url)
	orders      (id uuid, customer_*, total_amount, status, payment_*, created_at, updated_at)
	order_items (id bigserial, order_id → orders, menu_item_id, name, qty, price)

Status updates are a single statement:

	UPDATE orders SET status = $to WHERE id = $id AND status = $from

Zero affected rows means the order is missing (ErrNotFound) or another writer
moved it first (*StatusConflictError).

# Connection budget

Every operation first takes a slot from a Pool. When all slots are busy the
caller waits at most Options.AcquireTimeout and then receives ErrPoolTimeout,
which wraps ErrPersistence. Pool wait time and timeouts are exported as
foodie_store_pool_wait_seconds and foodie_store_pool_timeouts_total.

# Errors

	ErrNotFound        order or menu item does not exist
	ErrStatusConflict  conditional update lost (see StatusConflictError)
	ErrPersistence     the database failed; retrying may succeed
	ErrPoolTimeout     no slot became free in time (is also ErrPersistence)

Context cancellation is passed through unchanged.

# Usage

	store, err := storage.NewBoltStore("/var/lib/foodie", storage.Options{})
	if err != nil {
		return err
	}
	defer store.Close()

	order, err := store.UpdateStatus(ctx, id, types.OrderStatusPending, types.OrderStatusAccepted)
	if errors.Is(err, storage.ErrStatusConflict) {
		// someone else accepted it
	}
*/
package storage
