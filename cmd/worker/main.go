package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/benvon/smart-timelog/internal/config"
	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/lock"
	"github.com/benvon/smart-timelog/internal/logger"
	"github.com/benvon/smart-timelog/internal/queue"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"github.com/benvon/smart-timelog/internal/telemetry"
	"github.com/benvon/smart-timelog/internal/workers"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	concurrency := flag.Int("concurrency", 0, "Number of jobs processed at once (defaults to RABBITMQ_PREFETCH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireQueue(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	workerCount := *concurrency
	if workerCount < 1 {
		workerCount = cfg.RabbitMQPrefetch
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Int("concurrency", workerCount),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, "smart-timelog-worker", cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("invalid_redis_url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	zapLogger.Info("connected_to_redis")

	jobQueue, err := queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, queue.DefaultConnectAttempts, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	settings, err := cfg.ParserSettings()
	if err != nil {
		zapLogger.Fatal("failed_to_load_parser_settings", zap.Error(err))
	}

	// No lock wait bound: an import line waits for interactive writers to finish.
	service, err := timelog.NewService(
		database.NewFactRepository(db),
		settings,
		timelog.WithLocker(lock.NewRedisLocker(redisClient, cfg.LockTTL, zapLogger)),
		timelog.WithLogger(zapLogger),
		timelog.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err != nil {
		zapLogger.Fatal("failed_to_create_timelog_service", zap.Error(err))
	}

	importer := workers.NewImporter(service, jobQueue, zapLogger)

	msgs, errs, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	err = workers.Run(ctx, workerCount, msgs, errs, importer.ProcessJob, zapLogger)
	switch {
	case errors.Is(err, workers.ErrDeliveryClosed):
		zapLogger.Error("worker_stopped_delivery_closed")
	case err != nil:
		zapLogger.Error("worker_stopped", zap.Error(err))
	default:
		zapLogger.Info("worker_stopped")
	}
}
