// Package main is the entry point for the voicedispatch server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/audit"
	"github.com/fieldops/voicedispatch/internal/batchcaller"
	"github.com/fieldops/voicedispatch/internal/cache"
	"github.com/fieldops/voicedispatch/internal/clock"
	"github.com/fieldops/voicedispatch/internal/config"
	"github.com/fieldops/voicedispatch/internal/database"
	"github.com/fieldops/voicedispatch/internal/directcaller"
	"github.com/fieldops/voicedispatch/internal/enricher"
	"github.com/fieldops/voicedispatch/internal/handler"
	"github.com/fieldops/voicedispatch/internal/metrics"
	"github.com/fieldops/voicedispatch/internal/middleware"
	"github.com/fieldops/voicedispatch/internal/orchestrator"
	"github.com/fieldops/voicedispatch/internal/ratelimit"
	"github.com/fieldops/voicedispatch/internal/repository"
	"github.com/fieldops/voicedispatch/internal/search"
	"github.com/fieldops/voicedispatch/internal/shutdown"
	"github.com/fieldops/voicedispatch/internal/vendor"
	"github.com/fieldops/voicedispatch/internal/webhookingestor"
)

func main() {
	// Initialize logger with atomic level for runtime adjustment
	logger, logLevel, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	appMetrics := metrics.NewMetrics()

	logger.Info("starting voicedispatch server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Environment),
	)

	// Initialize database with query logging
	ctx := context.Background()
	var queryLoggerCfg *database.QueryLoggerConfig
	if cfg.Database.SlowQueryThreshold > 0 {
		queryLoggerCfg = &database.QueryLoggerConfig{
			SlowQueryThreshold:     cfg.Database.SlowQueryThreshold,
			VerySlowQueryThreshold: cfg.Database.VerySlowQueryThreshold,
			LogAllQueries:          cfg.Database.LogAllQueries,
			SampleRate:             0.1, // Sample 10% of queries when logging all
		}
	}
	db, err := database.NewWithQueryLogger(ctx, &cfg.Database, queryLoggerCfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	// Note: db.Close() is handled by shutdown coordinator

	// Run database migrations automatically on startup
	migrator := database.NewMigrator(db.Pool, logger)
	if err := migrator.MigrateFromDir(ctx, "migrations"); err != nil {
		logger.Fatal("failed to run database migrations", zap.Error(err))
	}
	logger.Info("database migrations completed successfully")

	// Initialize repositories
	requestRepo := repository.NewServiceRequestRepository(db.Pool)
	providerRepo := repository.NewProviderRepository(db.Pool)
	logRepo := repository.NewInteractionLogRepository(db.Pool)
	idempotencyRepo := repository.NewIdempotencyRepository(db.Pool, logger)

	// Initialize audit logger
	auditLogger := audit.NewLogger(logger)

	// Initialize the outbound voice vendor client, wired with its own
	// circuit breaker (see internal/vendor.New).
	vendorClient := vendor.New(vendor.Config{
		APIKey:        cfg.Vendor.APIKey,
		WebhookSecret: cfg.Vendor.WebhookSecret,
		APIURL:        cfg.Vendor.APIURL,
	}, logger)

	sysClock := clock.New()

	// Initialize the call cache. Backend selection lets a single-replica
	// deployment run entirely in-process, while a multi-replica deployment
	// shares cache entries (and therefore webhook delivery) through Redis.
	var cacheStore cache.Store
	cacheCfg := cache.Config{TTL: cfg.Cache.DefaultTTL, ReapInterval: cfg.Cache.ReapInterval}
	switch cfg.Cache.Backend {
	case "redis":
		redisClient := cache.NewRedisClient(cfg.Cache.RedisAddr)
		if err := cache.Ping(ctx, redisClient); err != nil {
			logger.Fatal("failed to connect to redis cache backend", zap.Error(err))
		}
		cacheStore = cache.NewRedisStore(redisClient, cacheCfg, sysClock, logger)
		logger.Info("call cache backend is redis", zap.String("addr", cfg.Cache.RedisAddr))
	default:
		cacheStore = cache.New(cacheCfg, sysClock, logger)
		logger.Info("call cache backend is in-memory")
	}

	// Rate limit outbound call dispatch to bound vendor API cost.
	callBudgetLimiter := ratelimit.NewCallBudgetLimiter(ratelimit.DefaultCallBudgetConfig(), logger)

	rateLimitedVendor := &rateLimitedVendorCaller{vendor: vendorClient, budget: callBudgetLimiter, logger: logger}

	// DirectCaller is built once and reused both as the fan-out target for
	// BatchCaller (qualification calls) and as the Orchestrator's
	// BookingRunner (the single confirmation call).
	directCallerCfg := directcaller.Config{
		PollInterval: cfg.Backend.PollInterval,
		MaxAttempts:  cfg.Backend.MaxPollAttempts,
	}
	if cfg.Vendor.WebhookMode {
		directCallerCfg.WebhookURL = cfg.Vendor.WebhookURL
	}
	directCaller := directcaller.New(
		directCallerCfg,
		rateLimitedVendor,
		cacheStore,
		providerRepo,
		directcaller.Sleep(sysClock),
		logger,
	)

	batchCaller := batchcaller.New(directCaller, logger)

	searchAdapter := search.NewNoopAdapter()

	orch := orchestrator.New(
		orchestrator.Config{MaxConcurrentCalls: cfg.Backend.MaxConcurrentCalls},
		requestRepo,
		providerRepo,
		logRepo,
		searchAdapter,
		batchCaller,
		directCaller,
		logger,
	)

	enrichPersister := repository.NewEnrichmentPersister(providerRepo, logRepo)
	enrichmentLoop := enricher.New(vendorClient, cacheStore, enrichPersister, directcaller.Sleep(sysClock), logger)

	webhookIngestor := webhookingestor.New(vendorClient, cacheStore, enrichmentLoop, logger)

	// Initialize HTTP handlers
	healthHandler := handler.NewHealthHandler(handler.HealthHandlerConfig{
		HealthChecker: db,
		VendorChecker: vendorClient,
		Logger:        logger,
	})

	cacheHandler := handler.NewCacheHandler(handler.CacheHandlerConfig{
		Store:  cacheStore,
		Logger: logger,
	})

	providersHandler := handler.NewProvidersHandler(handler.ProvidersHandlerConfig{
		Batch:          batchCaller,
		Single:         directCaller,
		Idempotency:    idempotencyRepo,
		WebhookEnabled: cfg.Vendor.WebhookMode,
		VapiConfigured: cfg.Vendor.APIKey != "",
		Logger:         logger,
	})

	bookingLimiter := middleware.NewBookingAttemptLimiter(logger)
	businessEvents := metrics.NewBusinessEventLogger(logger)

	requestsHandler := handler.NewRequestsHandler(handler.RequestsHandlerConfig{
		Requests: requestRepo,
		Driver:   orch,
		Booking:  bookingLimiter,
		Events:   businessEvents,
		Logger:   logger,
	})

	logLevelHandler := handler.NewLogLevelHandler(logLevel, logger)

	// Initialize request correlation
	correlation := middleware.NewRequestCorrelation(logger)
	rateLimiter := middleware.NewRateLimiter(120, time.Minute, logger)

	errorRateCfg := metrics.DefaultErrorRateConfig()
	errorRateCfg.AlertCallback = func(category metrics.ErrorCategory, rate float64) {
		logger.Warn("error rate threshold exceeded",
			zap.String("category", string(category)),
			zap.Float64("errors_per_second", rate),
		)
	}
	errorRateTracker := metrics.NewErrorRateTracker(errorRateCfg)

	// Initialize router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(correlation.Middleware) // First: add correlation IDs
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit(rateLimiter))
	r.Use(middleware.ErrorRateTracking(errorRateTracker))
	r.Use(appMetrics.Middleware)

	r.Handle("/metrics", appMetrics.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.BodySizeLimiterJSON())
		healthHandler.RegisterRoutes(api)
		cacheHandler.RegisterRoutes(api)
		providersHandler.RegisterRoutes(api)
		requestsHandler.RegisterRoutes(api)
		api.Handle("/admin/log-level", logLevelHandler)
	})

	r.Group(func(wh chi.Router) {
		wh.Use(middleware.BodySizeLimiterWebhook())
		wh.Post("/vapi/webhook", webhookIngestor.ServeHTTP)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	auditLogger.ServiceStarted(ctx, Version, cfg.Server.Environment)

	// Initialize shutdown coordinator
	shutdownCoord := shutdown.NewCoordinator(&shutdown.Config{
		Timeout: 30 * time.Second,
	}, logger)

	metricsStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				if stats != nil {
					appMetrics.UpdateDBConnections(int(stats.TotalConns()), int(stats.AcquiredConns()))
				}
			case <-metricsStop:
				return
			}
		}
	}()
	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "db-stats-updater", func(ctx context.Context) error {
		close(metricsStop)
		return nil
	})

	idempotencyCleanupStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := idempotencyRepo.CleanupExpired(cleanupCtx); err != nil {
					logger.Warn("failed to cleanup idempotency keys", zap.Error(err))
				}
				cancel()
			case <-idempotencyCleanupStop:
				return
			}
		}
	}()
	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "idempotency-cleanup", func(ctx context.Context) error {
		close(idempotencyCleanupStop)
		return nil
	})

	// Watches the vendor circuit breaker and surfaces every closed->open
	// transition as both a metric and an audit event.
	circuitMonitorStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		wasOpen := false
		for {
			select {
			case <-ticker.C:
				isOpen := vendorClient.IsCircuitOpen()
				state := 0
				if isOpen {
					state = 2
				}
				appMetrics.SetCircuitBreakerState("vendor-api", state)
				if isOpen && !wasOpen {
					auditLogger.CircuitBreakerOpen(context.Background(), "vendor-api")
					appMetrics.RecordCircuitBreakerTrip("vendor-api")
				}
				wasOpen = isOpen
			case <-circuitMonitorStop:
				return
			}
		}
	}()
	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "circuit-breaker-monitor", func(ctx context.Context) error {
		close(circuitMonitorStop)
		return nil
	})

	// Phase 2 (Drain): let in-flight requests complete.
	shutdownCoord.RegisterFunc(shutdown.PhaseDrain, "http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	// Phase 3 (Shutdown): stop background workers.
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "call-cache", func(ctx context.Context) error {
		cacheStore.Stop()
		return nil
	})

	// Phase 4 (Cleanup): close connections.
	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "database", func(ctx context.Context) error {
		db.Close()
		return nil
	})

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("received shutdown signal")
	auditLogger.ServiceStopping(ctx, "signal received")

	// Execute graceful shutdown
	if err := shutdownCoord.Shutdown(ctx); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
	}
}

// initLogger initializes the zap logger based on environment.
// Returns both the logger and the atomic level for runtime adjustment.
func initLogger() (*zap.Logger, zap.AtomicLevel, error) {
	env := os.Getenv("APP_ENV")

	// Create atomic level for runtime adjustment
	var level zap.AtomicLevel
	if env == "production" {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	// Build config with atomic level
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level

	logger, err := cfg.Build()
	if err != nil {
		return nil, level, err
	}

	return logger, level, nil
}

// vendorCaller is the subset of vendor.Client the rate-limiting wrapper
// dispatches through.
type vendorCaller interface {
	StartCall(ctx context.Context, req vendor.StartCallRequest) (*vendor.StartCallResponse, error)
	GetCall(ctx context.Context, callID string) (*vendor.CallEvent, error)
	IsDataComplete(event *vendor.CallEvent) bool
}

// rateLimitedVendorCaller wraps vendor.Client's StartCall with the call
// budget limiter so DirectCaller/BatchCaller dispatch never exceeds the
// configured per-minute/hour/day vendor API cost ceiling. GetCall and
// IsDataComplete pass straight through since polling reads don't dispatch
// new calls.
type rateLimitedVendorCaller struct {
	vendor vendorCaller
	budget *ratelimit.CallBudgetLimiter
	logger *zap.Logger
}

func (c *rateLimitedVendorCaller) StartCall(ctx context.Context, req vendor.StartCallRequest) (*vendor.StartCallResponse, error) {
	if err := c.budget.Acquire(ctx); err != nil {
		c.logger.Warn("call dispatch rejected by budget limiter", zap.Error(err))
		return nil, err
	}
	defer c.budget.Release()

	return c.vendor.StartCall(ctx, req)
}

func (c *rateLimitedVendorCaller) GetCall(ctx context.Context, callID string) (*vendor.CallEvent, error) {
	return c.vendor.GetCall(ctx, callID)
}

func (c *rateLimitedVendorCaller) IsDataComplete(event *vendor.CallEvent) bool {
	return c.vendor.IsDataComplete(event)
}
