package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/benvon/smart-timelog/internal/config"
	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/handlers"
	"github.com/benvon/smart-timelog/internal/lock"
	"github.com/benvon/smart-timelog/internal/logger"
	"github.com/benvon/smart-timelog/internal/middleware"
	"github.com/benvon/smart-timelog/internal/queue"
	"github.com/benvon/smart-timelog/internal/services/oidc"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"github.com/benvon/smart-timelog/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const serviceName = "smart-timelog-api"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireQueue(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("default_timeline", cfg.DefaultTimeline),
		zap.Bool("oidc_enabled", cfg.OIDCEnabled()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx := context.Background()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(ctx, serviceName, cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracingEnabled = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
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
	if err := db.EnsureSchema(ctx); err != nil {
		zapLogger.Fatal("failed_to_apply_schema", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	redisClient, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
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

	service, err := timelog.NewService(
		database.NewFactRepository(db),
		settings,
		timelog.WithLocker(lock.NewRedisLocker(redisClient, cfg.LockTTL, zapLogger)),
		timelog.WithLockWait(cfg.LockWait),
		timelog.WithLogger(zapLogger),
		timelog.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err != nil {
		zapLogger.Fatal("failed_to_create_timelog_service", zap.Error(err))
	}

	identify := middleware.HeaderTimeline(cfg.DefaultTimeline)
	if cfg.OIDCEnabled() {
		verifier := oidc.NewVerifier(oidc.NewJWKSManager(oidc.DefaultJWKSTTL), cfg.OIDCIssuer, cfg.OIDCJWKSURL)
		identify = middleware.Auth(verifier, zapLogger)
	} else {
		zapLogger.Warn("oidc_not_configured_using_timeline_header",
			zap.String("header", middleware.TimelineHeader),
		)
	}

	rateLimit, err := middleware.RateLimit(redisClient, cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	openAPIHandler, err := handlers.NewOpenAPIHandler()
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_document", zap.Error(err))
	}

	healthChecker := handlers.NewHealthChecker().
		AddCheck("database", db.HealthCheck).
		AddCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }).
		AddCheck("rabbitmq", jobQueue.HealthCheck)

	routerConfig := handlers.RouterConfig{
		Logger:         zapLogger,
		EnableHSTS:     cfg.EnableHSTS,
		FrontendURL:    cfg.FrontendURL,
		MaxRequestSize: middleware.DefaultMaxRequestSize,
		RequestTimeout: middleware.DefaultRequestTimeout,
		Identify:       identify,
		RateLimit:      rateLimit,
	}
	if tracingEnabled {
		routerConfig.ServiceName = serviceName
	}

	router := handlers.NewRouter(routerConfig,
		[]handlers.RouteRegistrar{healthChecker, openAPIHandler},
		[]handlers.RouteRegistrar{
			handlers.NewFactHandler(service, zapLogger),
			handlers.NewImportHandler(jobQueue, zapLogger),
			handlers.NewCatalogHandler(database.NewCatalogRepository(db), zapLogger),
		},
	)

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting_down_server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectRedis parses a redis:// URL and verifies the connection
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
