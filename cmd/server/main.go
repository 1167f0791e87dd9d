package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"campusride/internal/app"
	"campusride/internal/auth"
	"campusride/internal/chat"
	"campusride/internal/config"
	"campusride/internal/events"
	"campusride/internal/gateway"
	"campusride/internal/handler"
	"campusride/internal/logging"
	internalRedis "campusride/internal/redis"
	"campusride/internal/repository/postgres"
	"campusride/internal/scheduler"
	"campusride/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	logger := logging.NewLogger(cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Optional Kafka event stream.
	var producer *events.Producer
	if cfg.Kafka.Enabled {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer producer.Close()
		logger.Info("Kafka event stream enabled", "topic", cfg.Kafka.Topic)
	}

	// Wire dependencies.
	server, expiry := wireServer(db, redisClient, producer, nrApp, cfg, logger)

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	expiry.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server and the
// expiry scheduler so shutdown can stop its timers.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	producer *events.Producer,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *slog.Logger,
) (*http.Server, *scheduler.Scheduler) {
	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)
	tokenStore := internalRedis.NewPushTokenStore(redisClient)

	// Initialize repositories.
	userRepo := postgres.NewUserRepository(db)
	tripRepo := postgres.NewTripRepository(db)

	// Realtime hub doubles as the service layer's broadcaster.
	hub := gateway.NewHub(logger)
	chatRegistry := chat.NewRegistry()

	// Initialize services. The expiry scheduler needs the trip service and
	// vice versa, so the callback closes over a late-bound pointer.
	notificationService := service.NewNotificationService(nil, tokenStore, logger)

	var tripService *service.TripService
	expiry := scheduler.New(func(ctx context.Context, tripID string) {
		if err := tripService.ExpireTrip(ctx, tripID); err != nil {
			logger.Error("trip expiry failed", "trip_id", tripID, "error", err)
		}
	}, logger)

	var eventPublisher service.EventPublisher
	if producer != nil {
		eventPublisher = producer
	}

	tripService = service.NewTripService(service.TripServiceDeps{
		TripRepo:      tripRepo,
		UserRepo:      userRepo,
		Chats:         chatRegistry,
		Scheduler:     expiry,
		Notifications: notificationService,
		Broadcaster:   hub,
		Events:        eventPublisher,
		Locker:        lockStore,
		Cache:         cacheStore,
		Logger:        logger,
		BookingWindow: cfg.Trip.BookingWindow,
	})
	chatService := service.NewChatService(tripRepo, userRepo, chatRegistry, notificationService, eventPublisher, logger)
	userService := service.NewUserService(userRepo, tokenStore)

	// Auth and the websocket gateway.
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	gw := gateway.NewGateway(hub, chatService, verifier.Verify, logger)

	// Initialize handlers.
	tripHandler := handler.NewTripHandler(tripService, chatService)
	userHandler := handler.NewUserHandler(userService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TripHandler: tripHandler,
		UserHandler: userHandler,
		Gateway:     gw,
		Verifier:    verifier,
		RedisClient: redisClient,
		NewRelicApp: nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, expiry
}
