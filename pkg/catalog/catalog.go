package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidItem is returned by Seed for menu items that cannot be stored
var ErrInvalidItem = errors.New("invalid menu item")

// MenuStore is the subset of storage.Store the catalog reads and writes
type MenuStore interface {
	PutMenuItem(ctx context.Context, item *types.MenuItem) error
	GetMenuItem(ctx context.Context, id string) (*types.MenuItem, error)
	ListMenu(ctx context.Context) ([]*types.MenuItem, error)
}

// Catalog serves the menu. The store is authoritative; an optional Cache
// absorbs repeated getMenu calls.
type Catalog struct {
	store  MenuStore
	cache  Cache
	group  singleflight.Group
	logger zerolog.Logger
}

// New creates a catalog. cache may be nil.
func New(store MenuStore, cache Cache) *Catalog {
	return &Catalog{
		store:  store,
		cache:  cache,
		logger: log.WithComponent("catalog"),
	}
}

// Menu returns the full menu ordered by category then name
func (c *Catalog) Menu(ctx context.Context) ([]*types.MenuItem, error) {
	if c.cache != nil {
		items, err := c.cache.GetMenu(ctx)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Menu cache read failed, falling back to store")
		}
	}

	// Concurrent misses share one store read
	v, err, _ := c.group.Do("menu", func() (any, error) {
		items, err := c.store.ListMenu(ctx)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.SetMenu(ctx, items); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to populate menu cache")
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.MenuItem), nil
}

// Item looks up a single menu item. Prices are always read from the store so
// an order never snapshots a stale cached price.
func (c *Catalog) Item(ctx context.Context, id string) (*types.MenuItem, error) {
	return c.store.GetMenuItem(ctx, id)
}

// Seed validates and upserts items, then drops the cached menu
func (c *Catalog) Seed(ctx context.Context, items []*types.MenuItem) error {
	for _, item := range items {
		if err := Validate(item); err != nil {
			return err
		}
	}

	for _, item := range items {
		if err := c.store.PutMenuItem(ctx, item); err != nil {
			return fmt.Errorf("failed to store menu item %s: %w", item.ID, err)
		}
	}

	if c.cache != nil {
		if err := c.cache.Invalidate(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to invalidate menu cache")
		}
	}

	c.logger.Info().Int("items", len(items)).Msg("Menu seeded")
	return nil
}

// Validate checks a menu item before it is stored
func Validate(item *types.MenuItem) error {
	switch {
	case item == nil:
		return fmt.Errorf("%w: nil item", ErrInvalidItem)
	case item.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	case item.Name == "":
		return fmt.Errorf("%w: item %s has no name", ErrInvalidItem, item.ID)
	case item.Price.IsNegative():
		return fmt.Errorf("%w: item %s has negative price", ErrInvalidItem, item.ID)
	}
	return nil
}
