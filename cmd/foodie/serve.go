package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/cuemby/foodie/pkg/analytics"
	"github.com/cuemby/foodie/pkg/api"
	"github.com/cuemby/foodie/pkg/catalog"
	"github.com/cuemby/foodie/pkg/config"
	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/gateway"
	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/metrics"
	"github.com/cuemby/foodie/pkg/orders"
	"github.com/cuemby/foodie/pkg/relay"
	"github.com/cuemby/foodie/pkg/storage"
	"github.com/cuemby/foodie/pkg/stream"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the foodie server",
	Long: `Run the foodie server: JSON-RPC commands on /api/rpc, live events on /ws,
health on /health and /ready, and Prometheus metrics on /metrics.

Examples:
  # Local server with the embedded bolt store and the default menu
  foodie serve --seed-menu

  # Postgres, Redis menu cache and Kafka relay from a config file
  foodie serve --config foodie.yaml`,
	RunE: runServe,
}

func init() {
	addConfigFlags(serveCmd)
	serveCmd.Flags().String("http-addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().String("grpc-health-addr", "", "gRPC health listen address (overrides config)")
	serveCmd.Flags().Bool("seed-menu", false, "Seed the built-in menu when the catalog is empty")
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Path to YAML config file")
	cmd.Flags().String("data-dir", "", "Data directory for the bolt store (overrides config)")
	cmd.Flags().String("storage", "", "Storage driver: bolt or postgres (overrides config)")
	cmd.Flags().String("dsn", "", "Postgres connection string (overrides config)")
	cmd.Flags().String("redis-addr", "", "Redis address for the menu cache (overrides config)")
}

// loadConfig reads --config and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	override := func(flag string, dst *string) {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	override("data-dir", &cfg.Storage.DataDir)
	override("storage", &cfg.Storage.Driver)
	override("dsn", &cfg.Storage.DSN)
	override("redis-addr", &cfg.Redis.Addr)
	override("http-addr", &cfg.Server.HTTPAddr)
	override("grpc-health-addr", &cfg.Server.GRPCHealthAddr)

	if f := cmd.Flags().Lookup("log-level"); f != nil && !f.Changed && path != "" {
		log.Init(log.Config{Level: cfg.Log.Level, JSONOutput: cfg.Log.JSON, Output: os.Stderr})
	}

	return cfg, cfg.Validate()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	opts := storage.Options{
		MaxConns:       cfg.Storage.MaxConns,
		AcquireTimeout: cfg.Storage.AcquireTimeout,
	}
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return storage.NewPostgresStore(ctx, cfg.Storage.DSN, opts)
	default:
		return storage.NewBoltStore(cfg.Storage.DataDir, opts)
	}
}

// openCatalog returns the catalog and a close func for its cache client
func openCatalog(cfg *config.Config, store storage.Store) (*catalog.Catalog, *catalog.RedisCache, func()) {
	if cfg.Redis.Addr == "" {
		return catalog.New(store, nil), nil, func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cache := catalog.NewRedisCache(rdb, cfg.Redis.MenuTTL)
	return catalog.New(store, cache), cache, func() { rdb.Close() }
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	seedMenu, _ := cmd.Flags().GetBool("seed-menu")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Starting foodie server...")
	fmt.Printf("  HTTP Address: %s\n", cfg.Server.HTTPAddr)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Driver)
	fmt.Println()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	fmt.Println("✓ Store opened")

	cat, cache, closeCache := openCatalog(cfg, store)
	defer closeCache()

	if seedMenu {
		if err := seedIfEmpty(ctx, cat); err != nil {
			return err
		}
	}

	broker := events.NewBroker(events.Config{
		QueueSize:        cfg.Hub.QueueSize,
		SubscriberBuffer: cfg.Hub.SubscriberBuffer,
	})
	broker.Start()
	defer broker.Stop()

	machine := orders.NewMachine(store, cat, broker)

	agg := analytics.NewAggregator(store, broker, analytics.Config{
		Interval:   cfg.Analytics.Interval,
		MinRefresh: cfg.Analytics.MinRefresh,
	})
	agg.Start()
	defer agg.Stop()

	gw := gateway.New(machine, cat, agg, gateway.Config{
		CommandTimeout:   cfg.Gateway.CommandTimeout,
		BatchConcurrency: cfg.Gateway.BatchConcurrency,
	})

	streamHandler := stream.NewHandler(broker, stream.Config{
		PongWait:    cfg.Hub.PongWait,
		PingPeriod:  cfg.Hub.PingPeriod,
		CheckOrigin: originChecker(cfg.Server.AllowedOrigins),
	})

	checker := metrics.NewHealthChecker()
	checker.SetVersion(Version)
	checker.RegisterProbe(metrics.ComponentStorage, store.Ping)
	checker.RegisterProbe(metrics.ComponentHub, func(ctx context.Context) error {
		if !broker.Running() {
			return errors.New("hub stopped")
		}
		return nil
	})
	checker.SetComponent(metrics.ComponentGateway, true, "")
	if cache != nil {
		// reported by /health only; the store is the fallback
		checker.RegisterProbe("cache", cache.Ping)
	}

	collector := metrics.NewCollector(store, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(api.Config{
		HTTPAddr:        cfg.Server.HTTPAddr,
		GRPCHealthAddr:  cfg.Server.GRPCHealthAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, api.Handlers{
		RPC:    gw,
		Stream: streamHandler,
		Health: checker,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		relayCfg := relay.Config{
			Brokers:          cfg.Kafka.Brokers,
			Topic:            cfg.Kafka.Topic,
			IncludeAnalytics: cfg.Kafka.IncludeAnalytics,
		}
		r := relay.New(broker, relay.NewWriter(relayCfg), relayCfg)
		checker.RegisterProbe("kafka", r.Ping)
		g.Go(func() error {
			return r.Run(gctx)
		})
		fmt.Printf("✓ Relaying events to Kafka topic %s\n", relayCfg.Topic)
	}

	fmt.Println("✓ Server running. Press Ctrl+C to stop.")

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("\n✓ Shutdown complete")
	return nil
}

func seedIfEmpty(ctx context.Context, cat *catalog.Catalog) error {
	menu, err := cat.Menu(ctx)
	if err != nil {
		return fmt.Errorf("failed to read menu: %w", err)
	}
	if len(menu) > 0 {
		return nil
	}

	items, err := catalog.DefaultMenu()
	if err != nil {
		return err
	}
	if err := cat.Seed(ctx, items); err != nil {
		return fmt.Errorf("failed to seed menu: %w", err)
	}
	fmt.Printf("✓ Seeded %d menu items\n", len(items))
	return nil
}

// originChecker allows every origin when allowed is empty, otherwise only
// the listed hosts (scheme://host[:port])
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(allowed, u.Scheme+"://"+u.Host)
	}
}
