package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/cartstore/internal/cart"
	"github.com/utafrali/cartstore/internal/catalog"
	"github.com/utafrali/cartstore/internal/config"
	"github.com/utafrali/cartstore/internal/event"
	handler "github.com/utafrali/cartstore/internal/handler/http"
	"github.com/utafrali/cartstore/internal/identity"
	"github.com/utafrali/cartstore/internal/notify"
	"github.com/utafrali/cartstore/pkg/health"
	"github.com/utafrali/cartstore/pkg/httpclient"
	pkgkafka "github.com/utafrali/cartstore/pkg/kafka"
	"github.com/utafrali/cartstore/pkg/middleware"
	"github.com/utafrali/cartstore/pkg/tracing"
)

const serviceName = "cart-store"

// App wires together all dependencies and runs the cart store.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	storage        *snapshotStore
	store          *cart.Store
	hub            *notify.Hub
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	// Snapshot storage.
	snapshots, err := openStorage(ctx, cfg, logger, healthHandler)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	// Catalog client with retries and a circuit breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = time.Duration(cfg.CatalogTimeout) * time.Second
	baseClient := httpclient.New(httpCfg)

	cbCfg := httpclient.DefaultCircuitBreakerConfig("catalog")
	cbCfg.MaxRequests = cfg.CBMaxRequests
	cbCfg.Interval = time.Duration(cfg.CBInterval) * time.Second
	cbCfg.Timeout = time.Duration(cfg.CBTimeout) * time.Second
	cbCfg.FailureRatio = cfg.CBFailureRatio
	cbCfg.MinRequests = cfg.CBMinRequests
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger)
	catalogClient := catalog.NewClient(cbClient, cfg.CatalogURL, catalog.WithRateLimit(cfg.CatalogRPS, cfg.CatalogBurst))
	logger.Info("catalog client initialized",
		slog.String("url", cfg.CatalogURL),
		slog.Float64("rps", cfg.CatalogRPS),
		slog.Uint64("cb_min_requests", uint64(cbCfg.MinRequests)),
	)
	healthHandler.RegisterNonCritical("catalog", func(context.Context) error {
		if cbClient.State() == gobreaker.StateOpen {
			return httpclient.ErrCircuitOpen
		}
		return nil
	})

	// Identity and notifications.
	session := identity.NewSession(cfg.InitialUserID)
	hub := notify.NewHub(logger, cfg.CORSAllowedOrigins)
	sink := notify.Multi{notify.NewLogSink(logger), hub}

	// Kafka events.
	var (
		producer *pkgkafka.Producer
		consumer *pkgkafka.Consumer
		observer cart.Observer
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		observer = event.NewProducer(producer, logger)
		consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    cfg.KafkaSessionTopic,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}, identity.EventHandler(session, logger), logger)
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		logger.Info("kafka initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("session_topic", cfg.KafkaSessionTopic),
		)
	}

	// The cart store.
	store, err := cart.NewStore(ctx, cart.Deps{
		KV:       snapshots.kv,
		Identity: session,
		Catalog:  catalogClient,
		Sink:     sink,
		Observer: observer,
		Logger:   logger,
	},
		cart.WithReconcileConcurrency(cfg.ReconcileConcurrency),
		cart.WithReconcileTimeout(cfg.ReconcileTimeoutDuration()),
	)
	if err != nil {
		_ = snapshots.close()
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("create cart store: %w", err)
	}

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Store:         store,
		Session:       session,
		Notifications: hub,
		Health:        healthHandler,
		Logger:        logger,
		JWTSecret:     cfg.JWTSecret,
		CORS:          middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins),
	})

	// No WriteTimeout: websocket connections are long-lived. API routes carry
	// their own request timeout.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		storage:        snapshots,
		store:          store,
		hub:            hub,
		producer:       producer,
		consumer:       consumer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server, the session consumer and the one-time stock
// reconciliation, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("session consumer: %w", err)
			}
		}()
	}

	a.store.Mount(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server and websocket clients
// 2. Session consumer and the store's identity subscription
// 3. Tracer
// 4. Kafka producer
// 5. Snapshot storage
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.ShutdownTimeout)*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.hub.Close()

	// 2. Stop identity changes reaching the store.
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.store.Close()

	// 3. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close snapshot storage.
	if err := a.storage.close(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
