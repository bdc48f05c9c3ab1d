package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Config holds listener settings
type Config struct {
	// HTTPAddr serves the RPC, websocket, health and metrics routes
	HTTPAddr string
	// GRPCHealthAddr serves grpc.health.v1; empty disables it
	GRPCHealthAddr string

	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// ReadinessInterval is how often readiness is pushed to the gRPC health
	// service
	ReadinessInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.ReadinessInterval <= 0 {
		c.ReadinessInterval = 5 * time.Second
	}
	return c
}

// Handlers are the routes the server mounts
type Handlers struct {
	RPC    http.Handler
	Stream http.Handler
	Health *metrics.HealthChecker
}

// Server is the HTTP front door of foodie plus the gRPC health endpoint
type Server struct {
	cfg        Config
	handler    http.Handler
	checker    *metrics.HealthChecker
	grpcHealth *health.Server
	logger     zerolog.Logger
}

// NewServer builds the router. Nothing listens until Run.
func NewServer(cfg Config, h Handlers) *Server {
	cfg = cfg.withDefaults()
	if h.Health == nil {
		h.Health = metrics.NewHealthChecker()
	}

	s := &Server{
		cfg:        cfg,
		checker:    h.Health,
		grpcHealth: health.NewServer(),
		logger:     log.WithComponent("api"),
	}
	s.handler = s.routes(h)
	return s
}

func (s *Server) routes(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.checker.HealthHandler())
	r.Get("/ready", s.checker.ReadyHandler())
	r.Get("/live", s.checker.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	if h.RPC != nil {
		r.Post("/api/rpc", h.RPC.ServeHTTP)
	}
	if h.Stream != nil {
		r.Get("/ws", h.Stream.ServeHTTP)
	}

	return otelhttp.NewHandler(r, "foodie",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/metrics"
		}),
	)
}

// Handler returns the instrumented router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled, then shuts the listeners down
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}

	var grpcLis net.Listener
	if s.cfg.GRPCHealthAddr != "" {
		grpcLis, err = net.Listen("tcp", s.cfg.GRPCHealthAddr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCHealthAddr, err)
		}
	}

	return s.serve(ctx, httpLis, grpcLis)
}

func (s *Server) serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpSrv := &http.Server{
		Handler:     s.handler,
		ReadTimeout: s.cfg.ReadTimeout,
		IdleTimeout: s.cfg.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", httpLis.Addr().String()).Msg("HTTP server listening")
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var grpcSrv *grpc.Server
	if grpcLis != nil {
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, s.grpcHealth)

		g.Go(func() error {
			s.logger.Info().Str("addr", grpcLis.Addr().String()).Msg("gRPC health server listening")
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			s.syncReadiness(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info().Msg("Shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if grpcSrv != nil {
			s.grpcHealth.Shutdown()
			grpcSrv.GracefulStop()
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
