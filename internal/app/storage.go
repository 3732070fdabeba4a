package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/cartstore/internal/config"
	"github.com/utafrali/cartstore/internal/storage"
	"github.com/utafrali/cartstore/internal/storage/memory"
	"github.com/utafrali/cartstore/internal/storage/postgres"
	"github.com/utafrali/cartstore/internal/storage/postgres/migrations"
	redisstore "github.com/utafrali/cartstore/internal/storage/redis"
	"github.com/utafrali/cartstore/internal/storage/sqlite"
	"github.com/utafrali/cartstore/pkg/database"
	"github.com/utafrali/cartstore/pkg/health"
)

var (
	_ storage.Pinger = (*memory.KV)(nil)
	_ storage.Pinger = (*postgres.KV)(nil)
	_ storage.Pinger = (*redisstore.KV)(nil)
	_ storage.Pinger = (*sqlite.KV)(nil)
)

// snapshotStore is the storage backend chosen by STORAGE_DRIVER.
type snapshotStore struct {
	kv    storage.KV
	close func() error
}

// openStorage connects the configured backend and registers its health check.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger, hh *health.Handler) (*snapshotStore, error) {
	switch cfg.StorageDriver {
	case config.DriverRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Host:         cfg.RedisHost,
			Port:         cfg.RedisPort,
			Password:     cfg.RedisPass,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Duration(cfg.RedisTimeoutMs) * time.Millisecond,
			WriteTimeout: time.Duration(cfg.RedisTimeoutMs) * time.Millisecond,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("host", cfg.RedisHost),
			slog.Int("port", cfg.RedisPort),
			slog.Int("db", cfg.RedisDB),
		)
		kv := redisstore.NewKV(rdb, cfg.SnapshotTTLDuration())
		registerStorageHealth(hh, "redis", kv)
		return &snapshotStore{kv: kv, close: rdb.Close}, nil

	case config.DriverPostgres:
		pgCfg := database.PostgresConfig{
			Host:            cfg.PostgresHost,
			Port:            cfg.PostgresPort,
			User:            cfg.PostgresUser,
			Password:        cfg.PostgresPass,
			DBName:          cfg.PostgresDB,
			SSLMode:         cfg.PostgresSSL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
			MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
		}
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}

		kv := postgres.NewKV(pool)
		registerStorageHealth(hh, "postgres", kv)
		return &snapshotStore{kv: kv, close: func() error { pool.Close(); return nil }}, nil

	case config.DriverSQLite:
		kv, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("opened SQLite snapshot store", slog.String("path", cfg.SQLitePath))
		registerStorageHealth(hh, "sqlite", kv)
		return &snapshotStore{kv: kv, close: kv.Close}, nil

	default:
		kv := memory.NewKV()
		logger.Warn("using in-memory snapshot store; carts are lost on restart")
		registerStorageHealth(hh, "memory", kv)
		return &snapshotStore{kv: kv, close: func() error { return nil }}, nil
	}
}

// registerStorageHealth makes readiness depend on the backend when it can
// report its own health.
func registerStorageHealth(hh *health.Handler, name string, kv storage.KV) {
	if p, ok := kv.(storage.Pinger); ok {
		hh.RegisterCritical(name, p.Ping)
	}
}
