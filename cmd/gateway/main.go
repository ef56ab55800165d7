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
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/api"
	"github.com/erplora/commshub/internal/automation"
	"github.com/erplora/commshub/internal/config"
	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/events"
	"github.com/erplora/commshub/internal/metrics"
	"github.com/erplora/commshub/internal/observ"
	"github.com/erplora/commshub/internal/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting commshub gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for idempotency and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 requests
			Window: 1 * time.Minute, // per minute per tenant
		})
		defer redisClient.Close()
	}

	// Automation engine: CRM event intake plus the execution scheduler
	engine := automation.NewEngine(repo, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.SQSQueueURL != "" {
		consumer, err := events.NewConsumer(ctx, events.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("crm event consumer unavailable, automations will not trigger",
				zap.Error(err),
			)
		} else {
			defer consumer.Close()
			go consumer.Run(workerCtx, engine.HandleEvent)
			logger.Info("crm event consumer started")
		}
	} else {
		logger.Warn("SQS_EVENTS_QUEUE_URL not set, automations will not trigger")
	}

	scheduler := automation.NewScheduler(repo, automation.Config{
		PollInterval: time.Duration(cfg.AutomationPollSeconds) * time.Second,
		BatchSize:    cfg.AutomationBatchSize,
	}, logger)
	go scheduler.Start(workerCtx)

	logger.Info("automation scheduler started",
		zap.Int("poll_seconds", cfg.AutomationPollSeconds),
		zap.Int("batch_size", cfg.AutomationBatchSize),
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	var handler *api.Handler
	if idempotencyService != nil {
		handler = api.NewHandlerWithIdempotency(logger, repo, idempotencyService)
	} else {
		handler = api.NewHandler(logger, repo)
	}

	// Tenant-scoped routes
	r.Group(func(r chi.Router) {
		r.Use(api.TenantMiddleware(logger))
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.TenantKeyFunc))

		r.Get("/dashboard", handler.Dashboard)

		r.Get("/messages", handler.ListMessages)
		r.Post("/messages", handler.ComposeMessage)
		r.Get("/messages/{id}", handler.GetMessage)
		r.Delete("/messages/{id}", handler.DeleteMessage)

		r.Get("/templates", handler.ListTemplates)
		r.Post("/templates", handler.CreateTemplate)
		r.Get("/templates/{id}", handler.GetTemplate)
		r.Put("/templates/{id}", handler.UpdateTemplate)
		r.Delete("/templates/{id}", handler.DeleteTemplate)

		r.Get("/campaigns", handler.ListCampaigns)
		r.Post("/campaigns", handler.CreateCampaign)
		r.Get("/campaigns/{id}", handler.GetCampaign)
		r.Post("/campaigns/{id}/start", handler.StartCampaign)
		r.Post("/campaigns/{id}/cancel", handler.CancelCampaign)
		r.Post("/campaigns/{id}/complete", handler.CompleteCampaign)
		r.Delete("/campaigns/{id}", handler.DeleteCampaign)

		r.Get("/automations", handler.ListAutomations)
		r.Post("/automations", handler.CreateAutomation)
		r.Get("/automations/{id}", handler.GetAutomation)
		r.Put("/automations/{id}", handler.UpdateAutomation)
		r.Delete("/automations/{id}", handler.DeleteAutomation)
		r.Get("/automations/{id}/executions", handler.ListExecutions)

		r.Get("/settings", handler.GetSettings)
		r.Put("/settings", handler.UpdateSettings)

		r.Post("/api/send", handler.Send)
	})

	// Provider callbacks carry no tenant header; they are keyed by
	// the message's external_id.
	r.Post("/api/webhook", handler.Webhook)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
