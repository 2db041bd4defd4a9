package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"checkin-keeper/internal/browser"
	"checkin-keeper/internal/config"
	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/queue"
	"checkin-keeper/internal/repository"
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

	accounts := repository.NewMongoAccountRepository(db)
	providers := repository.NewMongoProviderRepository(db)
	jobs := repository.NewMongoCheckInJobRepository(db)
	sessions := repository.NewMongoSessionRepository(db)
	history := repository.NewMongoBalanceHistoryRepository(db)
	channels := repository.NewMongoNotificationChannelRepository(db)

	encryption, err := services.NewEncryptionService(cfg.EncryptionPassword, cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize encryption:", err)
	}

	tokenClient := services.NewTokenClient(cfg.RequestTimeout, cfg.RequestsPerSec)
	bypasser := browser.NewWafBypasser(cfg.HeadlessBrowser, cfg.WafWaitTimeout, cfg.WafPollInterval)
	historyService := services.NewBalanceHistoryService(history)
	notifier := services.NewNotificationService(channels, historyService, cfg.NotifyOnCheckIn)
	executor := services.NewCheckInExecutor(accounts, providers, jobs, sessions, encryption, tokenClient, bypasser, historyService, notifier, cfg.DisplayCacheHours)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Batch runs take the critical queue so a stuck single check-in cannot
	// starve them.
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				slog.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(executor)

	slog.Info("starting check-in worker", "redis", redisOpt.Addr, "concurrency", 5)

	if err := server.Run(processor.Mux()); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
