package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wellspring-care/teletherapy-platform/internal/api/router"
	"github.com/wellspring-care/teletherapy-platform/internal/audit"
	"github.com/wellspring-care/teletherapy-platform/internal/bookings"
	appconfig "github.com/wellspring-care/teletherapy-platform/internal/config"
	"github.com/wellspring-care/teletherapy-platform/internal/gcal"
	"github.com/wellspring-care/teletherapy-platform/internal/http/handlers"
	"github.com/wellspring-care/teletherapy-platform/internal/notify"
	"github.com/wellspring-care/teletherapy-platform/internal/observability/metrics"
	"github.com/wellspring-care/teletherapy-platform/internal/providers"
	"github.com/wellspring-care/teletherapy-platform/internal/scheduling"
	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting teletherapy scheduling API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	defer auditDB.Close()

	// Upstream calendar gateway. Authentication happens in the background so
	// startup never blocks on Google.
	calendarClient := gcal.NewClient(gcal.Options{
		CredentialsFile:    cfg.GoogleCredentialsFile,
		ImpersonateSubject: cfg.GoogleImpersonateSubject,
		SetupTimeout:       cfg.CalendarSetupTimeout,
		Retry: gcal.RetryConfig{
			MaxAttempts: cfg.CalendarRetryMaxAttempts,
			BaseDelay:   cfg.CalendarRetryBaseDelay,
		},
		Logger: logger,
	})
	go calendarClient.EnsureReady(ctx)

	schedulingMetrics := metrics.NewSchedulingMetrics(nil)

	var cache scheduling.Cache
	if cfg.CalendarCacheBackend == "redis" && cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cache = scheduling.NewRedisCache(redis.NewClient(opts), logger)
		logger.Info("directory cache backend: redis", "addr", cfg.RedisAddr)
	} else {
		cache = scheduling.NewMemoryCache()
		logger.Info("directory cache backend: memory")
	}

	providersRepo := providers.NewRepository(pool)
	bookingsRepo := bookings.NewRepository(pool)
	auditService := audit.NewService(auditDB)

	directory := scheduling.NewDirectory(scheduling.DirectoryOptions{
		Store:           providersRepo,
		Cache:           cache,
		AdminCalendarID: cfg.AdminCalendarID,
		TTL:             cfg.CalendarCacheTTL,
		Logger:          logger,
		Metrics:         schedulingMetrics,
	})
	calendarRouter := scheduling.NewRouter(directory, scheduling.NewRoutingAuditor(auditService), logger)
	eventManager := scheduling.NewEventManager(scheduling.EventManagerOptions{
		Calendar:     calendarClient,
		Router:       calendarRouter,
		ElapsedGrace: time.Duration(cfg.BookingBufferMinutes) * time.Minute,
		Logger:       logger,
		Metrics:      schedulingMetrics,
	})
	conflictChecker := scheduling.NewConflictChecker(calendarClient, directory, logger, schedulingMetrics)

	var emails notify.EmailSender = notify.NewStubEmailSender(logger)
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil {
		emails = sender
	}

	schedulingService := scheduling.NewService(scheduling.ServiceOptions{
		Events:            eventManager,
		Conflicts:         conflictChecker,
		Directory:         directory,
		Store:             bookingsRepo,
		Emails:            emails,
		Auditor:           auditService,
		Logger:            logger,
		Metrics:           schedulingMetrics,
		DefaultTimezone:   cfg.DefaultTimezone,
		WorkingHoursStart: cfg.WorkingHoursStart,
		WorkingHoursEnd:   cfg.WorkingHoursEnd,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		Scheduling:         handlers.NewSchedulingHandler(schedulingService, logger),
		AdminProviders:     handlers.NewAdminProvidersHandler(providersRepo, schedulingService, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
