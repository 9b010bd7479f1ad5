// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/swipestack/internal/api"
	"github.com/onnwee/swipestack/internal/auth"
	"github.com/onnwee/swipestack/internal/config"
	"github.com/onnwee/swipestack/internal/db"
	"github.com/onnwee/swipestack/internal/discovery"
	"github.com/onnwee/swipestack/internal/events"
	"github.com/onnwee/swipestack/internal/filter"
	"github.com/onnwee/swipestack/internal/geo"
	"github.com/onnwee/swipestack/internal/health"
	"github.com/onnwee/swipestack/internal/idempotency"
	"github.com/onnwee/swipestack/internal/jobs"
	"github.com/onnwee/swipestack/internal/middleware"
	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/ranking"
	"github.com/onnwee/swipestack/internal/swipe"
	"github.com/onnwee/swipestack/internal/tracing"
)

const (
	serviceName     = "swipestack-api"
	shutdownTimeout = 10 * time.Second
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", os.Getenv("SWIPESTACK_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Swipestack API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
		Version:      version,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(tp, logger)

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, cfg.MigrationsDir, logger); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	weights, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		// Defaults were returned alongside the error.
		logger.Warn("ranking calibration not applied", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := newMetrics()
	if err := m.register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	app := build(cfg, conn, redisClient, weights, m, logger)

	app.broadcaster.Start(ctx)
	defer app.broadcaster.Stop()
	app.backfill.Start(ctx)
	defer app.backfill.Stop()
	if app.memLimits != nil {
		go sweepRateLimits(ctx, app.memLimits)
	}
	if app.memReplays != nil {
		go idempotency.RunPeriodicCleanup(ctx, app.memReplays, 10*time.Minute, logger)
	}

	var dbChecker, redisChecker health.Checker = health.NewDBChecker(conn), nil
	if redisClient != nil {
		redisChecker = health.NewRedisChecker(redisClient)
	}

	handler := api.NewRouter(api.RouterConfig{
		Discovery:      api.NewDiscoveryHandlers(app.service),
		Events:         api.NewEventHandlers(app.broadcaster, nil),
		Health:         api.NewHealthHandlers(api.HealthHandlersConfig{DBChecker: dbChecker, RedisChecker: redisChecker}),
		Auth:           app.jwt,
		RateLimitStore: app.limits,
		Idempotency:    app.replays,
		Metrics:        m.http,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:         logger,
		ServiceName:    serviceName,
		Version:        version,
	})

	server := newServer(":"+strconv.Itoa(cfg.Port), handler)
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("starting server", "addr", ln.Addr().String(), "version", version)
	return serve(ctx, server, ln, logger)
}

// metrics groups every package's collectors.
type metrics struct {
	http      *middleware.Metrics
	discovery *discovery.Metrics
	swipe     *swipe.Metrics
	geo       *geo.Metrics
	events    *events.Metrics
	jobs      *jobs.Metrics
}

func newMetrics() *metrics {
	return &metrics{
		http:      middleware.NewMetrics(),
		discovery: discovery.NewMetrics(),
		swipe:     swipe.NewMetrics(),
		geo:       geo.NewMetrics(),
		events:    events.NewMetrics(),
		jobs:      jobs.NewMetrics(),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, r := range []interface {
		Register(prometheus.Registerer) error
	}{m.http, m.discovery, m.swipe, m.geo, m.events, m.jobs} {
		if err := r.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

// app holds the long-lived components built from config.
type app struct {
	service     *discovery.Service
	broadcaster *events.Broadcaster
	backfill    *geo.BackfillJob
	jwt         *auth.JWTService
	limits      middleware.RateLimitStore
	memLimits   *middleware.InMemoryRateLimitStore
	replays     idempotency.Store
	memReplays  *idempotency.InMemoryStore
}

func build(cfg *config.Config, conn *sqlx.DB, redisClient *redis.Client, weights *ranking.Weights, m *metrics, logger *slog.Logger) *app {
	profiles := profile.NewPostgresRepository(conn, logger)
	swipes := swipe.NewPostgresStore(conn)

	var cache interface {
		geo.CoordinateCache
		Warm(map[string]profile.Coordinates)
	} = geo.NewMemoryCache()
	if redisClient != nil {
		cache = geo.NewRedisCache(redisClient, "", logger)
	}
	if cfg.GeocodeSeedPath != "" {
		seed, err := geo.LoadSeed(cfg.GeocodeSeedPath)
		if err != nil {
			logger.Warn("coordinate cache not warmed", "error", err)
		} else {
			cache.Warm(seed)
			logger.Info("coordinate cache warmed", "locations", len(seed))
		}
	}
	resolver := geo.NewResolver(
		geo.NewNominatimGeocoder(cfg.GeocoderURL, serviceName+"/"+version),
		cache,
		geo.ResolverConfig{
			Timeout: time.Duration(cfg.GeocodeTimeoutMS) * time.Millisecond,
			Logger:  logger,
			Metrics: m.geo,
		},
	)

	broadcaster := events.NewBroadcaster(events.Config{Logger: logger, Metrics: m.events})

	service := discovery.NewService(discovery.Config{
		Profiles: profiles,
		History: swipe.NewHistory(swipes, swipes, swipe.HistoryConfig{
			Logger:  logger,
			Metrics: m.swipe,
		}),
		Interactions: swipes,
		Resolver:     resolver,
		Filter:       filter.NewEngine(filter.Config{Reciprocal: cfg.ReciprocalDealBreaker, Logger: logger}),
		Weights:      weights,
		Events:       broadcaster,
		Metrics:      m.discovery,
		Logger:       logger,
		MaxPool:      cfg.MaxPool,
	})

	a := &app{
		service:     service,
		broadcaster: broadcaster,
		backfill: geo.NewBackfillJob(geo.BackfillJobConfig{
			Logger:     logger,
			JobMetrics: m.jobs,
		}, profiles, resolver),
		jwt: auth.NewJWTService(auth.Config{
			Secret:         cfg.JWTSecret,
			PreviousSecret: cfg.JWTPreviousSecret,
			Issuer:         cfg.JWTIssuer,
		}),
	}
	if redisClient != nil {
		a.limits = middleware.NewRedisRateLimitStore(redisClient, m.http)
		a.replays = idempotency.NewRedisStore(redisClient, "")
	} else {
		a.memLimits = middleware.NewInMemoryRateLimitStore()
		a.limits = a.memLimits
		a.memReplays = idempotency.NewInMemoryStore()
		a.replays = a.memReplays
	}
	return a
}

// sweepRateLimits drops idle in-memory buckets until ctx is cancelled.
func sweepRateLimits(ctx context.Context, store *middleware.InMemoryRateLimitStore) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup(10 * time.Minute)
		}
	}
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// serve runs server on ln until ctx is cancelled, then shuts it down
// gracefully, letting in-flight requests finish within shutdownTimeout.
func serve(ctx context.Context, server *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return <-errCh
}

func shutdownTracing(tp *tracing.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}
}
