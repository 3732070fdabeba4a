package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/cartstore/pkg/config"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds all configuration for the cart store.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"CART_HTTP_PORT" envDefault:"8003"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Snapshot storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	SnapshotTTL   int    `env:"SNAPSHOT_TTL_HOURS" envDefault:"0"`

	// Redis
	RedisHost      string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass      string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize  int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisTimeoutMs int    `env:"REDIS_TIMEOUT_MS" envDefault:"500"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"POSTGRES_DB_NAME" envDefault:"cart_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// SQLite
	SQLitePath string `env:"SQLITE_PATH" envDefault:"cart.db"`

	// Catalog lookups
	CatalogURL     string  `env:"CATALOG_URL" envDefault:"http://localhost:8001"`
	CatalogTimeout int     `env:"CATALOG_TIMEOUT_SECONDS" envDefault:"5"`
	CatalogRPS     float64 `env:"CATALOG_RPS" envDefault:"0"`
	CatalogBurst   int     `env:"CATALOG_BURST" envDefault:"5"`

	// Circuit breaker settings for catalog calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Stock reconciliation
	ReconcileConcurrency int `env:"RECONCILE_CONCURRENCY" envDefault:"8"`
	ReconcileTimeout     int `env:"RECONCILE_TIMEOUT_SECONDS" envDefault:"0"`

	// Session
	JWTSecret     string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	InitialUserID string `env:"INITIAL_USER_ID" envDefault:""`

	// Kafka
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaSessionTopic string   `env:"KAFKA_SESSION_TOPIC" envDefault:"ecommerce.user.session"`
	KafkaGroupID      string   `env:"KAFKA_GROUP_ID" envDefault:"cart-store"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	ShutdownTimeout int `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"15"`
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, ".env"); err != nil {
		return nil, fmt.Errorf("load cart store config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SnapshotTTLDuration returns the snapshot expiry, or 0 for none.
func (c *Config) SnapshotTTLDuration() time.Duration {
	return time.Duration(c.SnapshotTTL) * time.Hour
}

// ReconcileTimeoutDuration returns the per-pass reconciliation timeout, or 0 for none.
func (c *Config) ReconcileTimeoutDuration() time.Duration {
	return time.Duration(c.ReconcileTimeout) * time.Second
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	drivers := []string{DriverMemory, DriverRedis, DriverPostgres, DriverSQLite}
	if !slices.Contains(drivers, c.StorageDriver) {
		return fmt.Errorf("STORAGE_DRIVER must be one of %v, got %q", drivers, c.StorageDriver)
	}
	switch c.StorageDriver {
	case DriverPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	}
	if c.SnapshotTTL < 0 {
		return fmt.Errorf("SNAPSHOT_TTL_HOURS must not be negative, got %d", c.SnapshotTTL)
	}

	if c.CatalogURL == "" {
		return fmt.Errorf("CATALOG_URL is required")
	}
	if _, err := url.ParseRequestURI(c.CatalogURL); err != nil {
		return fmt.Errorf("CATALOG_URL is invalid: %w", err)
	}
	if c.CatalogTimeout < 1 {
		return fmt.Errorf("CATALOG_TIMEOUT_SECONDS must be positive, got %d", c.CatalogTimeout)
	}
	if c.CatalogRPS < 0 {
		return fmt.Errorf("CATALOG_RPS must not be negative, got %f", c.CatalogRPS)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}

	if c.ReconcileConcurrency < 1 {
		return fmt.Errorf("RECONCILE_CONCURRENCY must be at least 1, got %d", c.ReconcileConcurrency)
	}
	if c.ReconcileTimeout < 0 {
		return fmt.Errorf("RECONCILE_TIMEOUT_SECONDS must not be negative, got %d", c.ReconcileTimeout)
	}

	if c.Environment != "development" && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required")
		}
		if c.KafkaSessionTopic == "" {
			return fmt.Errorf("KAFKA_SESSION_TOPIC is required")
		}
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
