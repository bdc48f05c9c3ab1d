package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cuemby/foodie/pkg/catalog"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/spf13/cobra"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Manage the menu",
}

var menuListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the menu served by a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(cmd)
		menu, err := c.Menu(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get menu: %w", err)
		}
		if c.Degraded() {
			fmt.Fprintln(os.Stderr, "! Server unavailable, showing cached menu")
		}
		printMenu(menu)
		return nil
	},
}

var menuSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write menu items into the store",
	Long: `Write menu items directly into the configured store. Items with an
existing id are replaced. Without --file the built-in menu is used.

Examples:
  # Seed the built-in 18 item menu into ./foodie-data
  foodie menu seed

  # Seed a custom menu into Postgres
  foodie menu seed -f menu.yaml --storage postgres --dsn postgres://...`,
	RunE: runMenuSeed,
}

func init() {
	menuCmd.AddCommand(menuListCmd)
	menuCmd.AddCommand(menuSeedCmd)

	addConfigFlags(menuSeedCmd)
	menuSeedCmd.Flags().StringP("file", "f", "", "YAML menu file (default: built-in menu)")
}

func runMenuSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	file, _ := cmd.Flags().GetString("file")
	var items []*types.MenuItem
	if file != "" {
		items, err = catalog.LoadMenuFile(file)
	} else {
		items, err = catalog.DefaultMenu()
	}
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	cat, _, closeCache := openCatalog(cfg, store)
	defer closeCache()

	if err := cat.Seed(ctx, items); err != nil {
		return fmt.Errorf("failed to seed menu: %w", err)
	}
	fmt.Printf("✓ Seeded %d menu items\n", len(items))
	return nil
}

func printMenu(menu []*types.MenuItem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE")
	for _, item := range menu {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.ID, item.Name, item.Category, item.Price.StringFixed(2))
	}
	w.Flush()
}
