// Package catalog serves the menu. Reads of the full menu go through an
// optional Redis cache; single-item lookups used for order pricing always
// hit the store. Seed validates and upserts items and invalidates the cache.
// The built-in default menu is embedded from default_menu.yaml.
package catalog
