// Package main is the entrypoint for the Pulse metrics API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/grayledger/pulse/internal/alert"
	"github.com/grayledger/pulse/internal/cache"
	"github.com/grayledger/pulse/internal/config"
	"github.com/grayledger/pulse/internal/handler"
	"github.com/grayledger/pulse/internal/metric"
	"github.com/grayledger/pulse/internal/middleware"
	"github.com/grayledger/pulse/internal/notify"
	"github.com/grayledger/pulse/internal/ratelimit"
	"github.com/grayledger/pulse/internal/repository"
	"github.com/grayledger/pulse/internal/rollup"
	"github.com/grayledger/pulse/internal/scheduler"
	"github.com/grayledger/pulse/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	loc, err := cfg.RollupLocation()
	if err != nil {
		logger.Error("invalid rollup timezone", "error", err)
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Storage and engines
	metricRepo := repository.NewMetricRepository(repo, loc)
	rollupRepo := repository.NewRollupRepository(repo)
	alertRepo := repository.NewAlertRepository(repo)

	tracker := metric.NewTracker(metricRepo, logger)
	rollupEngine := rollup.NewEngine(metricRepo, rollupRepo, loc, logger)

	var notifier alert.Notifier = notify.NewNoopSink()
	if cfg.AlertWebhookURL != "" {
		notifier = notify.NewWebhookSink(cfg.AlertWebhookURL)
	}
	rules := alert.DefaultRules(cfg.ErrorRateThreshold, cfg.CacheHitRateThreshold, cfg.JobFailuresThreshold)
	alertEngine := alert.NewEngine(alertRepo, notifier, rules, cfg.AlertCooldown, logger)

	collector := scheduler.NewCollector(tracker, alertEngine, logger)
	worker := scheduler.NewWorker(
		collector,
		rollupEngine,
		tracker,
		cfg.CollectInterval,
		cfg.MetricRetentionDays,
		cfg.RollupRetentionDays,
		logger,
	)

	// Rate limiting
	safelist, err := ratelimit.NewSafelist(cfg.GetSafelistCIDRs())
	if err != nil {
		logger.Error("invalid safelist CIDRs", "error", err)
		os.Exit(1)
	}
	limiter := ratelimit.NewLimiter(ratelimit.DefaultRules(), cacheClient, safelist, cfg.RateLimitFailClosed, logger)

	// Handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	metricHandler := handler.NewMetricHandler(tracker, logger)
	rollupHandler := handler.NewRollupHandler(rollupEngine, logger)
	alertHandler := handler.NewAlertHandler(alertEngine, collector, logger)
	demoHandler := handler.NewDemoHandler(tracker, logger)

	r := setupRouter(h, healthHandler, metricHandler, rollupHandler, alertHandler, demoHandler, limiter, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	go func() {
		if err := worker.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("scheduler stopped", "error", err)
		}
	}()
	srv.OnShutdown("scheduler", worker.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	metricHandler *handler.MetricHandler,
	rollupHandler *handler.RollupHandler,
	alertHandler *handler.AlertHandler,
	demoHandler *handler.DemoHandler,
	limiter *ratelimit.Limiter,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: limiter,
		Enabled: cfg.RateLimitEnabled,
	}

	// Global middleware. The safety-net throttle covers every route,
	// health probes included; probe source ranges belong on the
	// safelist.
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.RateLimit(rateLimitCfg))

	// Health endpoints
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	// Root info endpoint
	r.Get("/", h.Hello)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/metrics", func(r chi.Router) {
			r.Post("/", metricHandler.Record)
			r.Get("/{name}/latest", metricHandler.Latest)
			r.Get("/{name}/summary", metricHandler.Summary)
			r.Get("/{name}/percentile", metricHandler.Percentile)
			r.Get("/{name}/by-day", metricHandler.ByDay)
		})

		r.Route("/rollups", func(r chi.Router) {
			r.Post("/run", rollupHandler.Run)
			r.Get("/{name}/latest", rollupHandler.Latest)
			r.Get("/{name}/trend", rollupHandler.Trend)
			r.Get("/{name}/average", rollupHandler.Average)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Post("/check", alertHandler.Check)
		})

		// Throttled application endpoints
		r.Post("/otp/generate", demoHandler.GenerateOTP)
		r.Post("/otp/validate", demoHandler.ValidateOTP)
		r.Post("/receipts", demoHandler.UploadReceipt)
		r.Post("/categorize", demoHandler.Categorize)
		r.Post("/entries", demoHandler.CreateEntry)
		r.Get("/ping", demoHandler.Ping)
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
