package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/foodie/pkg/types"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// pq error codes
const (
	pqInvalidText    = "22P02"
	pqUniqueViolated = "23505"
)

// PostgresStore implements Store on PostgreSQL. Order placement writes the
// header and its items in one transaction; status changes are conditional
// UPDATEs so a stale writer never overwrites a newer status.
type PostgresStore struct {
	db   *sql.DB
	pool *Pool
	now  func() time.Time
}

// NewPostgresStore opens dsn, verifies the connection and applies the
// embedded schema migrations.
func NewPostgresStore(ctx context.Context, dsn string, opts Options) (*PostgresStore, error) {
	opts = opts.withDefaults()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MaxConns)

	s := &PostgresStore{
		db:   db,
		pool: NewPool(opts.MaxConns, opts.AcquireTimeout),
		now:  opts.Now,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("could not load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(s.db, &postgres.Config{
		MigrationsTable: "foodie_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	// m.Close would also close s.db
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return s.classify("ping", s.db.PingContext(ctx))
}

func (s *PostgresStore) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	return persistErr(op, err)
}

const orderColumns = `id, customer_name, customer_phone, customer_address, total_amount,
	status, payment_method, payment_ref, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*types.Order, error) {
	var o types.Order
	err := row.Scan(
		&o.ID,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.CustomerAddress,
		&o.TotalAmount,
		&o.Status,
		&o.PaymentMethod,
		&o.PaymentRef,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Items = make([]types.LineItem, 0)
	return &o, nil
}

// Order operations

func (s *PostgresStore) CreateOrder(ctx context.Context, order *types.Order) error {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	order.CreatedAt = order.CreatedAt.Truncate(time.Microsecond)
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify("begin create order", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID,
		order.CustomerName,
		order.CustomerPhone,
		order.CustomerAddress,
		order.TotalAmount,
		order.Status,
		order.PaymentMethod,
		order.PaymentRef,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolated {
			return persistErr("insert order", fmt.Errorf("order %s already exists", order.ID))
		}
		return s.classify("insert order", err)
	}

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx, `INSERT INTO order_items (order_id, menu_item_id, name, qty, price)
			VALUES ($1, $2, $3, $4, $5)`,
			order.ID, item.MenuItemID, item.Name, item.Quantity, item.UnitPrice)
		if err != nil {
			return s.classify("insert order item", err)
		}
	}

	return s.classify("commit create order", tx.Commit())
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, s.orderErr("get order", id, err)
	}

	if err := s.loadItems(ctx, []*types.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, filter ListFilter) ([]*types.Order, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *filter.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.classify("list orders", err)
	}
	defer rows.Close()

	orders := make([]*types.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, s.classify("scan order row", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("row iteration", err)
	}

	if err := s.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fills Items for every order with one query
func (s *PostgresStore) loadItems(ctx context.Context, orders []*types.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*types.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT order_id, menu_item_id, name, qty, price
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return s.classify("load order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var item types.LineItem
		if err := rows.Scan(&orderID, &item.MenuItemID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return s.classify("scan order item", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return s.classify("item iteration", rows.Err())
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to types.OrderStatus) (*types.Order, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := scanOrder(s.db.QueryRowContext(ctx, `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2 RETURNING `+orderColumns,
		id, from, to, s.now()))
	if errors.Is(err, sql.ErrNoRows) {
		// Either the order is gone or another writer moved it first
		var actual types.OrderStatus
		lookupErr := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&actual)
		if lookupErr != nil {
			return nil, s.orderErr("update status", id, lookupErr)
		}
		return nil, &StatusConflictError{OrderID: id, Expected: from, Actual: actual}
	}
	if err != nil {
		return nil, s.orderErr("update status", id, err)
	}

	if err := s.loadItems(ctx, []*types.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PostgresStore) SetPaymentRef(ctx context.Context, id, ref string) (*types.Order, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := scanOrder(s.db.QueryRowContext(ctx, `UPDATE orders SET payment_ref = $2, updated_at = $3
		WHERE id = $1 RETURNING `+orderColumns,
		id, ref, s.now()))
	if err != nil {
		return nil, s.orderErr("set payment ref", id, err)
	}

	if err := s.loadItems(ctx, []*types.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// orderErr maps a missing row, or an ID that is not a valid UUID, to
// ErrNotFound.
func (s *PostgresStore) orderErr(op, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("order", id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInvalidText {
		return notFound("order", id)
	}
	return s.classify(op, err)
}

// Aggregates

func (s *PostgresStore) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE created_at >= $1`, since).Scan(&count)
	return count, s.classify("count orders", err)
}

func (s *PostgresStore) SumTotalSince(ctx context.Context, since time.Time, statuses ...types.OrderStatus) (decimal.Decimal, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer release()

	query := `SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE created_at >= $1`
	args := []any{since}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(statusStrings(statuses)))
	}

	var sum decimal.Decimal
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, s.classify("sum totals", err)
	}
	return sum, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, statuses ...types.OrderStatus) (int, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status = ANY($1)`,
		pq.Array(statusStrings(statuses))).Scan(&count)
	return count, s.classify("count by status", err)
}

// Menu operations

func (s *PostgresStore) PutMenuItem(ctx context.Context, item *types.MenuItem) error {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = s.db.ExecContext(ctx, `INSERT INTO menu_items (id, name, price, category, image_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
			category = EXCLUDED.category, image_url = EXCLUDED.image_url`,
		item.ID, item.Name, item.Price, item.Category, item.ImageURL)
	return s.classify("put menu item", err)
}

func (s *PostgresStore) GetMenuItem(ctx context.Context, id string) (*types.MenuItem, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var item types.MenuItem
	err = s.db.QueryRowContext(ctx, `SELECT id, name, price, category, image_url
		FROM menu_items WHERE id = $1`, id).
		Scan(&item.ID, &item.Name, &item.Price, &item.Category, &item.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("menu item", id)
	}
	if err != nil {
		return nil, s.classify("get menu item", err)
	}
	return &item, nil
}

func (s *PostgresStore) ListMenu(ctx context.Context) ([]*types.MenuItem, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, price, category, image_url
		FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, s.classify("list menu", err)
	}
	defer rows.Close()

	items := make([]*types.MenuItem, 0)
	for rows.Next() {
		var item types.MenuItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.Category, &item.ImageURL); err != nil {
			return nil, s.classify("scan menu item", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("menu iteration", err)
	}
	return items, nil
}
