package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/foodie/pkg/types"
	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketOrders      = []byte("orders")
	bucketOrderItems  = []byte("order_items")
	bucketOrdersByAge = []byte("orders_by_created_at")
	bucketMenu        = []byte("menu_items")
)

// BoltStore implements Store interface using BoltDB.
//
// Order headers live in the orders bucket without their items. Items live in
// a per-order sub-bucket of order_items keyed by insertion sequence, so a
// placement writes several records and relies on the bolt transaction to make
// them appear together. orders_by_created_at maps a sortable creation key to
// the order ID for newest-first listing and time-range aggregates.
type BoltStore struct {
	db   *bolt.DB
	pool *Pool
	now  func() time.Time
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string, opts Options) (*BoltStore, error) {
	opts = opts.withDefaults()
	dbPath := filepath.Join(dataDir, "foodie.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: opts.AcquireTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketOrders,
			bucketOrderItems,
			bucketOrdersByAge,
			bucketMenu,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{
		db:   db,
		pool: NewPool(opts.MaxConns, opts.AcquireTimeout),
		now:  opts.Now,
	}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database file is usable
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.view(ctx, "ping", func(tx *bolt.Tx) error {
		if tx.Bucket(bucketOrders) == nil {
			return fmt.Errorf("bucket %s missing", bucketOrders)
		}
		return nil
	})
}

// view and update run fn inside a bolt transaction after taking a pool slot.
// Errors from fn that are already classified pass through unchanged;
// everything else is wrapped as a persistence failure.
func (s *BoltStore) view(ctx context.Context, op string, fn func(tx *bolt.Tx) error) error {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return classify(op, s.db.View(fn))
}

func (s *BoltStore) update(ctx context.Context, op string, fn func(tx *bolt.Tx) error) error {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(op, s.db.Update(fn))
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	return persistErr(op, err)
}

// Order operations

func (s *BoltStore) CreateOrder(ctx context.Context, order *types.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	return s.update(ctx, "create order", func(tx *bolt.Tx) error {
		orders := tx.Bucket(bucketOrders)
		if orders.Get([]byte(order.ID)) != nil {
			return fmt.Errorf("order %s already exists", order.ID)
		}

		if err := putHeader(orders, order); err != nil {
			return err
		}

		items, err := tx.Bucket(bucketOrderItems).CreateBucket([]byte(order.ID))
		if err != nil {
			return fmt.Errorf("failed to create items bucket: %w", err)
		}
		for _, item := range order.Items {
			seq, err := items.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(item)
			if err != nil {
				return err
			}
			if err := items.Put(itob(seq), data); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketOrdersByAge).Put(ageKey(order.CreatedAt, order.ID), []byte(order.ID))
	})
}

func (s *BoltStore) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	var order *types.Order
	err := s.view(ctx, "get order", func(tx *bolt.Tx) error {
		var err error
		order, err = loadOrder(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *BoltStore) ListOrders(ctx context.Context, filter ListFilter) ([]*types.Order, error) {
	limit := filter.limit()
	orders := make([]*types.Order, 0)

	err := s.view(ctx, "list orders", func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOrdersByAge).Cursor()
		for k, v := c.Last(); k != nil && len(orders) < limit; k, v = c.Prev() {
			order, err := loadOrder(tx, string(v))
			if err != nil {
				return err
			}
			if filter.matches(order) {
				orders = append(orders, order)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *BoltStore) UpdateStatus(ctx context.Context, id string, from, to types.OrderStatus) (*types.Order, error) {
	return s.mutateHeader(ctx, "update status", id, func(order *types.Order) error {
		if order.Status != from {
			return &StatusConflictError{OrderID: id, Expected: from, Actual: order.Status}
		}
		order.Status = to
		return nil
	})
}

func (s *BoltStore) SetPaymentRef(ctx context.Context, id, ref string) (*types.Order, error) {
	return s.mutateHeader(ctx, "set payment ref", id, func(order *types.Order) error {
		order.PaymentRef = ref
		return nil
	})
}

func (s *BoltStore) mutateHeader(ctx context.Context, op, id string, mutate func(*types.Order) error) (*types.Order, error) {
	var updated *types.Order
	err := s.update(ctx, op, func(tx *bolt.Tx) error {
		order, err := loadOrder(tx, id)
		if err != nil {
			return err
		}
		if err := mutate(order); err != nil {
			return err
		}
		order.UpdatedAt = s.now()
		if err := putHeader(tx.Bucket(bucketOrders), order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Aggregates

func (s *BoltStore) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	count := 0
	err := s.view(ctx, "count orders", func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOrdersByAge).Cursor()
		for k, _ := c.Seek(ageKey(since, "")); k != nil; k, _ = c.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *BoltStore) SumTotalSince(ctx context.Context, since time.Time, statuses ...types.OrderStatus) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := s.view(ctx, "sum totals", func(tx *bolt.Tx) error {
		orders := tx.Bucket(bucketOrders)
		c := tx.Bucket(bucketOrdersByAge).Cursor()
		for k, v := c.Seek(ageKey(since, "")); k != nil; k, v = c.Next() {
			header, err := getHeader(orders, string(v))
			if err != nil {
				return err
			}
			if len(statuses) == 0 || containsStatus(statuses, header.Status) {
				sum = sum.Add(header.TotalAmount)
			}
		}
		return nil
	})
	return sum, err
}

func (s *BoltStore) CountByStatus(ctx context.Context, statuses ...types.OrderStatus) (int, error) {
	count := 0
	err := s.view(ctx, "count by status", func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrders).ForEach(func(k, v []byte) error {
			var header types.Order
			if err := json.Unmarshal(v, &header); err != nil {
				return err
			}
			if containsStatus(statuses, header.Status) {
				count++
			}
			return nil
		})
	})
	return count, err
}

// Menu operations

func (s *BoltStore) PutMenuItem(ctx context.Context, item *types.MenuItem) error {
	return s.update(ctx, "put menu item", func(tx *bolt.Tx) error {
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMenu).Put([]byte(item.ID), data)
	})
}

func (s *BoltStore) GetMenuItem(ctx context.Context, id string) (*types.MenuItem, error) {
	var item types.MenuItem
	err := s.view(ctx, "get menu item", func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMenu).Get([]byte(id))
		if data == nil {
			return notFound("menu item", id)
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *BoltStore) ListMenu(ctx context.Context) ([]*types.MenuItem, error) {
	items := make([]*types.MenuItem, 0)
	err := s.view(ctx, "list menu", func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMenu).ForEach(func(k, v []byte) error {
			var item types.MenuItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// helpers

func putHeader(b *bolt.Bucket, order *types.Order) error {
	header := *order
	header.Items = nil
	data, err := json.Marshal(&header)
	if err != nil {
		return err
	}
	return b.Put([]byte(order.ID), data)
}

func getHeader(b *bolt.Bucket, id string) (*types.Order, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return nil, notFound("order", id)
	}
	var order types.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func loadOrder(tx *bolt.Tx, id string) (*types.Order, error) {
	order, err := getHeader(tx.Bucket(bucketOrders), id)
	if err != nil {
		return nil, err
	}

	order.Items = make([]types.LineItem, 0)
	items := tx.Bucket(bucketOrderItems).Bucket([]byte(id))
	if items == nil {
		return order, nil
	}
	err = items.ForEach(func(k, v []byte) error {
		var item types.LineItem
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// ageKey sorts by creation time, then by ID for orders created in the same
// nanosecond. Times before the epoch clamp to zero.
func ageKey(t time.Time, id string) []byte {
	nanos := t.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	var buf bytes.Buffer
	buf.Write(itob(uint64(nanos)))
	buf.WriteString(id)
	return buf.Bytes()
}
