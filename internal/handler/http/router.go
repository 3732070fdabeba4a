package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/cartstore/internal/cart"
	"github.com/utafrali/cartstore/internal/identity"
	"github.com/utafrali/cartstore/pkg/health"
	"github.com/utafrali/cartstore/pkg/middleware"
)

const serviceName = "cart-store"

// RouterConfig holds everything the router exposes.
type RouterConfig struct {
	Store         *cart.Store
	Session       *identity.Session
	Notifications http.Handler
	Health        *health.Handler
	Logger        *slog.Logger
	JWTSecret     string
	CORS          middleware.CORSConfig
}

// NewRouter creates a chi router with all cart store routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// The websocket upgrade needs the raw connection, so it stays outside the
	// compressing and timeout middleware.
	if cfg.Notifications != nil {
		r.Get("/ws/notifications", cfg.Notifications.ServeHTTP)
	}

	cartHandler := NewCartHandler(cfg.Store, cfg.Logger)
	sessionHandler := NewSessionHandler(cfg.Session, cfg.Store, cfg.Logger)
	validate := func(token string) (string, error) {
		return identity.ParseToken(token, cfg.JWTSecret)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(ContentTypeJSON)
		r.Use(CartKeyContext(cfg.Store))

		r.Route("/api/v1/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)

			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{id}", cartHandler.UpdateItemQuantity)
			r.Delete("/items/{id}", cartHandler.RemoveItem)

			r.Post("/out-of-stock", cartHandler.MarkOutOfStock)
			r.Post("/reconcile", cartHandler.Reconcile)
		})

		r.Route("/api/v1/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Current)
			r.With(middleware.Auth(validate)).Post("/", sessionHandler.SignIn)
			r.With(middleware.Auth(validate)).Delete("/", sessionHandler.SignOut)
		})
	})

	return r
}
