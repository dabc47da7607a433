// Package main provides the entrypoint for the RequestDesk API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/requestdesk/requestdesk/internal/api"
	"github.com/requestdesk/requestdesk/internal/api/middleware"
	"github.com/requestdesk/requestdesk/internal/attachment"
	"github.com/requestdesk/requestdesk/internal/auth"
	"github.com/requestdesk/requestdesk/internal/database"
	"github.com/requestdesk/requestdesk/internal/notify"
	"github.com/requestdesk/requestdesk/internal/records"
	"github.com/requestdesk/requestdesk/internal/request"
	"github.com/requestdesk/requestdesk/internal/resilience"
	"github.com/requestdesk/requestdesk/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "requestdesk-api"

	// Load .env for local development; missing file is fine.
	_ = godotenv.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RequestDesk API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Connect to Redis for 2FA codes
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer redisClient.Close()

	var codeStore auth.CodeStore = auth.NewRedisCodeStore(redisClient)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, falling back to in-memory 2fa codes")
		codeStore = auth.NewMemoryCodeStore()
	}

	// Event publisher: Pub/Sub when a project is configured, no-op otherwise.
	var publisher notify.Publisher = notify.NopPublisher{}
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		topicID := os.Getenv("PUBSUB_TOPIC")
		if topicID == "" {
			topicID = "portal-events"
		}
		pubsubPublisher, err := notify.NewPubSubPublisher(ctx, notify.PubSubConfig{
			ProjectID: projectID,
			TopicID:   topicID,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub publisher")
		}
		publisher = pubsubPublisher
		log.Info().Str("topic", topicID).Msg("pubsub publisher initialized")
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - events will be discarded")
	}
	defer publisher.Close()
	notifier := notify.NewNotifier(publisher)

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     os.Getenv("JWT_ISSUER"),
		Audience:   os.Getenv("JWT_AUDIENCE"),
	})

	authService := auth.NewService(auth.ServiceConfig{
		JWTService:  jwtService,
		UserRepo:    auth.NewPostgresUserRepository(pool),
		RefreshRepo: auth.NewPostgresRefreshTokenRepository(pool),
		Codes:       codeStore,
		Notifier:    notifier,
		Logger:      log,
	})
	log.Info().Msg("auth service initialized")

	// Attachment storage: MinIO when configured, local memory otherwise.
	var storage attachment.Storage
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		useSSL, _ := strconv.ParseBool(os.Getenv("MINIO_USE_SSL"))
		storage, err = attachment.NewMinioStorage(ctx, attachment.MinioConfig{
			Endpoint:      endpoint,
			AccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey:     os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:        useSSL,
			Bucket:        getEnvOrDefault("MINIO_BUCKET", "request-attachments"),
			PublicBaseURL: getEnvOrDefault("MINIO_PUBLIC_URL", "http://"+endpoint),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize object storage")
		}
		log.Info().Str("endpoint", endpoint).Msg("object storage initialized")
	} else {
		log.Warn().Msg("MINIO_ENDPOINT not set - attachments are held in memory")
		storage = attachment.NewMemoryStorage("http://localhost:" + port + "/files")
	}

	// Initialize request repository and service
	requestRepo := request.NewPostgresRepository(pool)
	requestService := request.NewService(request.ServiceConfig{
		Repository: requestRepo,
		Storage:    storage,
		Notifier:   notifier,
		Logger:     log,
	})
	log.Info().Msg("request service initialized")

	// Background sync of external intake records, when configured.
	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	if intakeURL := os.Getenv("INTAKE_RECORDS_URL"); intakeURL != "" {
		interval, err := time.ParseDuration(getEnvOrDefault("INTAKE_SYNC_INTERVAL", "5m"))
		if err != nil {
			log.Fatal().Err(err).Msg("invalid INTAKE_SYNC_INTERVAL")
		}
		syncer := records.NewSyncer(records.NewClient(records.ClientConfig{
			BaseURL:  intakeURL,
			APIKey:   os.Getenv("INTAKE_API_KEY"),
			Registry: resilience.GlobalRegistry,
		}), requestRepo, log)
		go syncer.Run(syncCtx, interval)
		log.Info().
			Str("url", intakeURL).
			Dur("interval", interval).
			Msg("intake records sync started")
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		AuthService:    authService,
		RequestService: requestService,
		Database:       pool,
		Providers:      resilience.GlobalRegistry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopSync()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
