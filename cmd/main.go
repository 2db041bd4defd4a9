package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"checkin-keeper/internal/bootstrap"
	"checkin-keeper/internal/browser"
	"checkin-keeper/internal/config"
	"checkin-keeper/internal/database"
	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/probe"
	"checkin-keeper/internal/repository"
	"checkin-keeper/internal/telemetry"
	"checkin-keeper/middleware"
	"checkin-keeper/models"
	"checkin-keeper/routes"
	"checkin-keeper/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()
	if err := database.EnsureIndexes(startupCtx, db); err != nil {
		log.Fatal("Failed to ensure indexes:", err)
	}

	// Connect to Redis
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Tracing is opt-in.
	if cfg.TelemetryEnabled {
		shutdownTracer, err := telemetry.InitTracer("checkin-keeper", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracer:", err)
		}
		defer shutdownTracer()
	}

	// Repositories
	accounts := repository.NewMongoAccountRepository(db)
	providers := repository.NewMongoProviderRepository(db)
	jobs := repository.NewMongoCheckInJobRepository(db)
	sessions := repository.NewMongoSessionRepository(db)
	history := repository.NewMongoBalanceHistoryRepository(db)
	channels := repository.NewMongoNotificationChannelRepository(db)

	// Credential encryption, then the one-time plaintext migration.
	encryption, err := services.NewEncryptionService(cfg.EncryptionPassword, cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize encryption:", err)
	}
	migrated, failed, err := encryption.MigrateUnencryptedAccounts(startupCtx, accounts)
	if err != nil {
		log.Fatal("Failed to migrate credentials:", err)
	}
	if migrated > 0 {
		slog.Info("encrypted legacy plaintext credentials", "accounts", migrated)
	}
	if failed > 0 {
		slog.Warn("some accounts could not be migrated to encrypted storage", "accounts", failed)
	}

	seeded, err := bootstrap.SeedBuiltinProviders(startupCtx, providers)
	if err != nil {
		log.Fatal("Failed to seed builtin providers:", err)
	}
	slog.Info("builtin providers ready", "seeded", seeded)

	// Services
	bus := services.NewEventBus()
	defer bus.Close()

	historyService := services.NewBalanceHistoryService(history)
	accountService := services.NewAccountService(accounts, providers, encryption, bus)
	tokenClient := services.NewTokenClient(cfg.RequestTimeout, cfg.RequestsPerSec)
	tokenService := services.NewTokenService(accountService, providers, tokenClient, rdb, time.Duration(cfg.TokenCacheHours)*time.Hour)
	stopCacheWatch := tokenService.WatchAccounts(bus)
	defer stopCacheWatch()
	bypasser := browser.NewWafBypasser(cfg.HeadlessBrowser, cfg.WafWaitTimeout, cfg.WafPollInterval)
	notifier := services.NewNotificationService(channels, historyService, cfg.NotifyOnCheckIn)
	executor := services.NewCheckInExecutor(accounts, providers, jobs, sessions, encryption, tokenClient, bypasser, historyService, notifier, cfg.DisplayCacheHours)
	exporter := services.NewExportService(accounts, providers, history)
	prober := probe.NewProber(cfg.RequestTimeout)
	auditor := models.NewAuditLogger(db)

	scheduler := services.NewScheduler(executor, accounts, bus)
	if err := scheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer scheduler.Stop()

	// Asynq client for the enqueue endpoints. The worker binary consumes.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	router.Use(middleware.RequestSizeLimit(5 << 20))
	if cfg.TelemetryEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
		metrics, err := telemetry.NewMetrics()
		if err != nil {
			log.Fatal("Failed to initialize metrics:", err)
		}
		router.Use(middleware.MetricsMiddleware(metrics))
	}
	router.Use(middleware.AuditMiddleware(auditor))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg, rdb)

	// Setup routes
	routes.SetupAuthRoutes(router, cfg, rdb)
	routes.SetupAccountRoutes(router, accountService, historyService, authMiddleware)
	routes.SetupProviderRoutes(router, providers, prober, authMiddleware)
	routes.SetupCheckInRoutes(router, executor, jobs, asynqClient, authMiddleware)
	routes.SetupTokenRoutes(router, tokenService, authMiddleware)
	routes.SetupNotificationRoutes(router, channels, notifier, authMiddleware)
	routes.SetupExportRoutes(router, exporter, authMiddleware)
	routes.SetupAuditRoutes(router, auditor, authMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	slog.Info("server exited")
}
