package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/cuemby/foodie/pkg/types"
	"gopkg.in/yaml.v3"
)

//go:embed default_menu.yaml
var defaultMenu []byte

// DefaultMenu returns the built-in menu
func DefaultMenu() ([]*types.MenuItem, error) {
	return ParseMenu(defaultMenu)
}

// LoadMenuFile reads a YAML menu file
func LoadMenuFile(path string) ([]*types.MenuItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}
	return ParseMenu(data)
}

// ParseMenu decodes a YAML list of menu items and validates each one
func ParseMenu(data []byte) ([]*types.MenuItem, error) {
	var items []*types.MenuItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse menu: %w", err)
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if err := Validate(item); err != nil {
			return nil, err
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidItem, item.ID)
		}
		seen[item.ID] = true
	}
	return items, nil
}
