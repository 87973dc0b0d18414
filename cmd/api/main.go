// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/onnwee/urbanscape/internal/api"
	"github.com/onnwee/urbanscape/internal/auth"
	"github.com/onnwee/urbanscape/internal/config"
	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/events"
	"github.com/onnwee/urbanscape/internal/geometry"
	"github.com/onnwee/urbanscape/internal/health"
	"github.com/onnwee/urbanscape/internal/idempotency"
	"github.com/onnwee/urbanscape/internal/indicators"
	"github.com/onnwee/urbanscape/internal/middleware"
	"github.com/onnwee/urbanscape/internal/project"
	"github.com/onnwee/urbanscape/internal/scenario"
	"github.com/onnwee/urbanscape/internal/storage"
	"github.com/onnwee/urbanscape/internal/territory"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Urbanscape API Server")
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

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	// W3C trace context so callers can correlate spans across services.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Metrics registry with process/runtime collectors.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpMetrics := middleware.NewMetrics()
	projectMetrics := project.NewMetrics()
	scenarioMetrics := scenario.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register,
		projectMetrics.Register,
		scenarioMetrics.Register,
	} {
		if err := register(registry); err != nil {
			logger.Error("metrics registration failed", "error", err)
			os.Exit(1)
		}
	}

	// Redis backs event publishing, distributed rate limiting and the
	// readiness probe. All of those degrade gracefully when unset.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if redisClient != nil {
		publisher = events.NewRedisPublisher(redisClient)
	}

	var indicatorClient project.IndicatorRequester
	if cfg.IndicatorServiceURL != "" {
		c := indicators.NewClient(cfg.IndicatorServiceURL, logger)
		if err := c.Register(registry); err != nil {
			logger.Error("metrics registration failed", "error", err)
			os.Exit(1)
		}
		indicatorClient = c
	}

	var objectStore project.ObjectStore
	if cfg.StorageEnabled() {
		client, err := storage.NewClient(storage.Config{
			BucketName:      cfg.S3BucketName,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
		})
		if err != nil {
			logger.Error("object storage initialization failed", "error", err)
			os.Exit(1)
		}
		objectStore = client
	}

	// Domain wiring: the copy-on-write engine and territory resolver feed
	// the project service; the merge reader and editor serve scenario
	// endpoints directly.
	geoOps := geometry.NewPostGISOps(pool)
	territories := territory.NewResolver(territory.NewPostgresRepository(pool), geoOps)
	engine := scenario.NewEngine(scenario.Config{
		BootstrapAreaFraction: cfg.BootstrapAreaFraction,
		BootstrapExcludeName:  cfg.BootstrapExcludeName,
	}, logger, scenarioMetrics)
	projects := project.NewService(
		pool,
		project.NewPostgresRepository(),
		engine,
		territories,
		indicatorClient,
		publisher,
		objectStore,
		logger,
		projectMetrics,
		cfg.ContextBufferMeters,
	)
	projects.BindLifetime(ctx)
	reader := scenario.NewReader(pool, scenario.NewPostgresFunctionDictionary(pool), scenario.NewPostgresTerritoryHierarchy(pool), logger, scenarioMetrics)
	editor := scenario.NewEditor(pool, engine, logger)

	mux := http.NewServeMux()
	api.NewProjectHandlers(projects).Register(mux)
	api.NewScenarioHandlers(projects, reader, editor).Register(mux)

	healthCfg := api.HealthHandlersConfig{DBChecker: health.NewDBChecker(pool)}
	if redisClient != nil {
		healthCfg.RedisChecker = health.NewRedisChecker(redisClient)
	}
	api.NewHealthHandlers(healthCfg).Register(mux)

	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Idempotency currently backs project creation only.
	idemRepo := idempotency.NewInMemoryRepository()
	go idempotency.RunPeriodicCleanup(ctx, idemRepo, time.Hour, idempotency.DefaultExpiry)

	var limitStore middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	if redisClient != nil {
		limitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics)
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	handler := wrapMiddleware(cfg, logger, mux, chainDeps{
		metrics:    httpMetrics,
		limitStore: limitStore,
		idemRepo:   idemRepo,
		validator:  jwtService,
	})

	server := newServer(cfg, handler)

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	projects.Wait()

	logger.Info("server stopped")
}

// chainDeps carries the cross-cutting dependencies of the middleware chain.
type chainDeps struct {
	metrics    *middleware.Metrics
	limitStore middleware.RateLimitStore
	idemRepo   idempotency.Repository
	validator  middleware.TokenValidator
}

// wrapMiddleware wraps mux in the full middleware chain, outermost first:
// profiling (development only), request id, tracing, logging, metrics,
// CORS (only with configured origins), auth, rate limit, idempotency.
func wrapMiddleware(cfg *config.Config, logger *slog.Logger, mux http.Handler, deps chainDeps) http.Handler {
	handler := mux
	handler = middleware.IdempotencyMiddleware(deps.idemRepo, map[string]bool{"/projects": true})(handler)
	handler = middleware.RateLimiter(deps.limitStore, middleware.DefaultGlobalLimit(), middleware.UserKeyFunc(), deps.metrics)(handler)
	handler = middleware.Auth(deps.validator)(handler)
	if len(cfg.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowCredentials: true,
		})(handler)
	}
	handler = middleware.HTTPMetrics(deps.metrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing("urbanscape-api")(handler)
	handler = middleware.RequestID(handler)
	if cfg.Env == "development" {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
	}
	return handler
}

// newServer builds the HTTP server with the timeouts every deployment
// uses.
func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
