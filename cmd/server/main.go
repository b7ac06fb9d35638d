package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"tle_zone_grader/internal/api"
	"tle_zone_grader/internal/app/judge"
	"tle_zone_grader/internal/app/service"
	"tle_zone_grader/internal/app/worker"
	"tle_zone_grader/internal/common/security"
	"tle_zone_grader/internal/domain/repository"
	"tle_zone_grader/internal/platform/config"
	"tle_zone_grader/internal/platform/database"
	"tle_zone_grader/internal/platform/events"
	"tle_zone_grader/internal/platform/executor"
	"tle_zone_grader/internal/platform/logger"
	"tle_zone_grader/internal/platform/queue"

	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	config.Load()
	cfg := config.AppConfig
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	ctx := context.Background()

	languages, err := config.LoadLanguages(cfg.LanguagesFile)
	if err != nil {
		logger.Fatal(ctx, "failed to load language catalog", zap.String("file", cfg.LanguagesFile), zap.Error(err))
	}

	// 2. Initialize JWT
	security.InitJWT(cfg.JWTKey)

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	if err := database.Migrate(ctx, database.DB); err != nil {
		logger.Fatal(ctx, "failed to apply migrations", zap.Error(err))
	}

	// 4. Initialize Redis
	queue.ConnectRedis()
	defer queue.CloseRedis()

	// 5. Initialize NATS (optional)
	var publisher events.Publisher = events.NewLogPublisher()
	nc, err := events.Connect(cfg.NatsURL)
	if err != nil {
		logger.Fatal(ctx, "nats unavailable", zap.Error(err))
	}
	if nc != nil {
		defer nc.Drain()
		publisher = events.NewNATSPublisher(nc, cfg.NatsSubjectPrefix)
		logger.Info(ctx, "connected to NATS", zap.String("url", cfg.NatsURL))
	}

	// 6. Initialize Repositories
	problemRepo := repository.NewPgProblemRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	jobRepo := repository.NewPgProgressJobRepository(database.DB)
	progressRepo := repository.NewPgProgressRepository(database.DB)
	txRunner := database.SQLTxRunner{DB: database.DB}

	// 7. Initialize Services
	execClient := executor.NewClient(executor.Options{
		BaseURL:          cfg.ExecutorBaseURL,
		AuthToken:        cfg.ExecutorAuthToken,
		RequestTimeout:   cfg.ExecutorRequestTimeout,
		MaxRetries:       cfg.ExecutorMaxRetries,
		RetryBase:        cfg.ExecutorRetryBase,
		RetryMax:         cfg.ExecutorRetryMax,
		DefaultTimeLimit: time.Duration(cfg.DefaultRuntimeLimitMs) * time.Millisecond,
	})
	evaluator := judge.NewEvaluator(execClient, cfg.EvaluatorConcurrency)

	var locker service.Locker = queue.NewRedisLocker(queue.RDB, cfg.ProgressLockPrefix, cfg.ProgressLockTTL)
	if cfg.ProgressLockMode == "local" {
		locker = queue.NewLocalLocker()
	}

	jobService := service.NewProgressJobService(jobRepo, queue.RDB, cfg.ProgressQueueName, cfg.ProgressProcessingLease)
	problemService := service.NewProblemService(problemRepo, languages)
	submissionService := service.NewSubmissionService(submissionRepo, problemRepo, jobService, evaluator, languages, txRunner, service.SubmissionConfig{
		GradingDeadline:      cfg.GradingDeadline,
		RunDeadline:          cfg.RunDeadline,
		DefaultTimeLimit:     time.Duration(cfg.DefaultRuntimeLimitMs) * time.Millisecond,
		DefaultMemoryLimitKb: cfg.DefaultMemoryLimitKb,
	})
	progressService := service.NewProgressService(submissionRepo, problemRepo, progressRepo, locker, txRunner, publisher)

	// 8. Initialize Progress Worker (as a goroutine)
	progressWorker := worker.NewProgressWorker(queue.RDB, jobRepo, progressService, jobService, publisher, worker.Options{
		QueueName:       cfg.ProgressQueueName,
		DeadLetterQueue: cfg.ProgressDeadLetterQueue,
		Concurrency:     cfg.ProgressWorkerConcurrency,
		MaxAttempts:     cfg.ProgressMaxAttempts,
		RetryBase:       cfg.ProgressRetryBase,
		SweepInterval:   cfg.ProgressSweepInterval,
	})
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	workerDone := make(chan struct{})
	go func() {
		progressWorker.Start(workerCtx)
		close(workerDone)
	}()

	// 9. Initialize Router & HTTP Server
	requestTimeout := cfg.GradingDeadline + 15*time.Second
	router := api.NewRouter(problemService, submissionService, progressService, jobService, requestTimeout)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info(ctx, "server starting", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "could not listen", zap.String("port", cfg.APIPort), zap.Error(err))
		}
	}()

	<-stop // Wait for interrupt signal

	logger.Info(ctx, "shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), requestTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server shutdown failed", zap.Error(err))
	}
	workerCancel() // Signal worker to stop
	<-workerDone

	logger.Info(ctx, "server and worker stopped gracefully")
}
