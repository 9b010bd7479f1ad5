package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/swipestack/internal/idempotency"
	"github.com/onnwee/swipestack/internal/middleware"
)

// RouterConfig wires the handlers and middleware into one http.Handler.
type RouterConfig struct {
	Discovery *DiscoveryHandlers
	Events    *EventHandlers
	Health    *HealthHandlers

	Auth middleware.TokenValidator

	// RateLimitStore enables per-user limits on the discovery and swipe
	// routes when set.
	RateLimitStore middleware.RateLimitStore
	DiscoveryLimit middleware.RateLimitConfig
	SwipeLimit     middleware.RateLimitConfig

	// Idempotency enables Idempotency-Key replay on the swipe routes when
	// set.
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration

	Metrics        *middleware.Metrics
	MetricsHandler http.Handler

	Logger      *slog.Logger
	ServiceName string
	Version     string
}

// NewRouter builds the server's handler. The middleware order, outermost
// first, is Tracing -> RequestID -> HTTPMetrics -> Logging -> routes.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "swipestack-api"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.DiscoveryLimit.RequestsPerWindow == 0 {
		cfg.DiscoveryLimit = middleware.DefaultDiscoveryLimit()
	}
	if cfg.SwipeLimit.RequestsPerWindow == 0 {
		cfg.SwipeLimit = middleware.DefaultSwipeLimit()
	}

	requireAuth := middleware.RequireAuth(cfg.Auth)
	limited := func(limit middleware.RateLimitConfig, h http.Handler) http.Handler {
		next := h
		if cfg.RateLimitStore != nil {
			next = middleware.RateLimiter(cfg.RateLimitStore, limit, middleware.UserKeyFunc(), cfg.Metrics)(next)
		}
		return requireAuth(next)
	}

	replayable := func(h http.HandlerFunc) http.Handler {
		if cfg.Idempotency == nil {
			return h
		}
		return middleware.Idempotency(cfg.Idempotency, cfg.IdempotencyTTL, cfg.Metrics, cfg.Logger)(h)
	}

	mux := http.NewServeMux()

	if cfg.Health != nil {
		mux.HandleFunc("/health", cfg.Health.Health)
		mux.HandleFunc("/ready", cfg.Health.Ready)
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.Discovery != nil {
		mux.Handle("/v1/discovery", limited(cfg.DiscoveryLimit, http.HandlerFunc(cfg.Discovery.GetDiscovery)))
		mux.Handle("/v1/swipes", limited(cfg.SwipeLimit, replayable(cfg.Discovery.RecordSwipe)))
		mux.Handle("/v1/swipes/undo", limited(cfg.SwipeLimit, replayable(cfg.Discovery.UndoSwipe)))
	}
	if cfg.Events != nil {
		mux.Handle("/v1/events", requireAuth(http.HandlerFunc(cfg.Events.Subscribe)))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, r.Context(), http.StatusOK, map[string]string{
			"service": cfg.ServiceName,
			"version": cfg.Version,
		})
	})

	var handler http.Handler = mux
	handler = middleware.Logging(cfg.Logger)(handler)
	handler = middleware.HTTPMetrics(cfg.Metrics)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Tracing(cfg.ServiceName)(handler)
	return handler
}
