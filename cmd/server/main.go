package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/api"
	"github.com/kestrelvaluation/securechat/internal/api/middleware"
	"github.com/kestrelvaluation/securechat/internal/blob"
	"github.com/kestrelvaluation/securechat/internal/chat"
	"github.com/kestrelvaluation/securechat/internal/config"
	"github.com/kestrelvaluation/securechat/internal/handlers"
	"github.com/kestrelvaluation/securechat/internal/store"
	"github.com/kestrelvaluation/securechat/internal/sync"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Document store: MongoDB, or in-memory in development without one
	var dataStore store.DataStore
	if cfg.MongoURL != "" {
		mongoStore, err := store.NewMongoStore(ctx, cfg.MongoURL, cfg.MongoDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("mongo connection failed")
		}
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logger.Fatal().Err(err).Msg("mongo index creation failed")
		}
		defer mongoStore.Close(ctx)
		dataStore = mongoStore
		logger.Info().Msg("connected to MongoDB")
	} else {
		dataStore = store.NewMemoryStore()
		logger.Warn().Msg("MONGO_URL not set, using in-memory store")
	}

	// Presence store: Redis, or in-memory in development without one
	var redisStore *store.RedisStore
	var presenceStore chat.PresenceStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		presenceStore = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		presenceStore = store.NewMemoryPresence()
		logger.Warn().Msg("REDIS_URL not set, using in-memory presence")
	}

	// Sync bus: NATS across instances, in-process without one
	var bus sync.Bus
	if cfg.NatsURL != "" {
		natsBus, err := sync.ConnectNats(cfg.NatsURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connection failed")
		}
		defer natsBus.Close()
		bus = natsBus
		logger.Info().Msg("connected to NATS")
	} else {
		bus = sync.NewMemoryBus()
		logger.Warn().Msg("NATS_URL not set, using in-process bus")
	}

	publisher := sync.NewPublisher(bus, logger)

	// Messaging core
	directory := chat.NewDirectory(dataStore, publisher, logger)
	messages := chat.NewMessages(dataStore, publisher, logger)
	reconciler := chat.NewReconciler(dataStore, publisher, logger)
	presence := chat.NewPresence(presenceStore, cfg.HeartbeatInterval)
	hub := sync.NewHub(dataStore, bus, reconciler, logger)

	var blobs blob.Store
	if cfg.BlobConfigured() {
		blobs = blob.NewCloudinaryStore(cfg.BlobCloudName, cfg.BlobAPIKey, cfg.BlobAPISecret, cfg.BlobFolder)
	}

	// Background unread sweep repairs counter drift from partially
	// applied reconciliations
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.SweepInterval > 0 {
		go reconciler.RunSweeper(sweepCtx, cfg.SweepInterval)
	}

	h := handlers.NewHandler(handlers.Deps{
		Store:      dataStore,
		Redis:      redisStore,
		Directory:  directory,
		Messages:   messages,
		Reconciler: reconciler,
		Presence:   presence,
		Hub:        hub,
		Bus:        bus,
		Blobs:      blobs,
		Logger:     logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Handler:   h,
		Auth:      middleware.NewAuthMiddleware(cfg.JWTSecret),
		SendLimit: middleware.NewRateLimiter(redisStore, cfg.SendRateLimit, logger),
		Logger:    logger,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket sessions outlive any fixed write window
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting SecureChat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	stopSweep()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
