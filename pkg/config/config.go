package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuemby/foodie/pkg/log"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// Config is the full configuration of a foodie server
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Hub       HubConfig       `yaml:"hub"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCHealthAddr  string        `yaml:"grpc_health_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins restricts websocket origins; empty allows all
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StorageConfig struct {
	Driver         string        `yaml:"driver"`
	DataDir        string        `yaml:"data_dir"`
	DSN            string        `yaml:"dsn"`
	MaxConns       int           `yaml:"max_conns"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

type GatewayConfig struct {
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
}

type AnalyticsConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MinRefresh time.Duration `yaml:"min_refresh"`
}

type HubConfig struct {
	QueueSize        int           `yaml:"queue_size"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	PongWait         time.Duration `yaml:"pong_wait"`
	PingPeriod       time.Duration `yaml:"ping_period"`
}

// RedisConfig enables the menu cache when Addr is set
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	MenuTTL  time.Duration `yaml:"menu_ttl"`
}

// KafkaConfig enables the event relay when Brokers is non-empty
type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`
	Topic            string   `yaml:"topic"`
	IncludeAnalytics bool     `yaml:"include_analytics"`
}

type LogConfig struct {
	Level log.Level `yaml:"level"`
	JSON  bool      `yaml:"json"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:         DriverBolt,
			DataDir:        "./foodie-data",
			MaxConns:       10,
			AcquireTimeout: 5 * time.Second,
		},
		Gateway: GatewayConfig{
			CommandTimeout:   10 * time.Second,
			BatchConcurrency: 8,
		},
		Analytics: AnalyticsConfig{
			Interval:   10 * time.Second,
			MinRefresh: time.Second,
		},
		Hub: HubConfig{
			QueueSize:        100,
			SubscriberBuffer: 50,
			PongWait:         60 * time.Second,
		},
		Redis: RedisConfig{
			MenuTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "foodie-order-events",
		},
		Log: LogConfig{
			Level: log.InfoLevel,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.HTTPAddr != "", "server.http_addr is required")
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout must be positive")

	switch c.Storage.Driver {
	case DriverBolt:
		check(c.Storage.DataDir != "", "storage.data_dir is required for the bolt driver")
	case DriverPostgres:
		check(c.Storage.DSN != "", "storage.dsn is required for the postgres driver")
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", DriverBolt, DriverPostgres, c.Storage.Driver))
	}
	check(c.Storage.MaxConns > 0, "storage.max_conns must be positive")
	check(c.Storage.AcquireTimeout > 0, "storage.acquire_timeout must be positive")

	check(c.Gateway.CommandTimeout > 0, "gateway.command_timeout must be positive")
	check(c.Gateway.BatchConcurrency > 0, "gateway.batch_concurrency must be positive")

	check(c.Analytics.Interval > 0, "analytics.interval must be positive")
	check(c.Analytics.MinRefresh >= 0, "analytics.min_refresh must not be negative")

	check(c.Hub.QueueSize > 0, "hub.queue_size must be positive")
	check(c.Hub.SubscriberBuffer > 0, "hub.subscriber_buffer must be positive")
	check(c.Hub.PongWait > 0, "hub.pong_wait must be positive")
	check(c.Hub.PingPeriod >= 0 && c.Hub.PingPeriod < c.Hub.PongWait,
		"hub.ping_period must be shorter than hub.pong_wait")

	check(c.Redis.MenuTTL >= 0, "redis.menu_ttl must not be negative")
	if len(c.Kafka.Brokers) > 0 {
		check(c.Kafka.Topic != "", "kafka.topic is required when brokers are set")
	}

	switch c.Log.Level {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
