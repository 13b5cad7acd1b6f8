package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"fleet-tracking-backend/config"
	"fleet-tracking-backend/internal/api"
	"fleet-tracking-backend/internal/db"
	"fleet-tracking-backend/internal/devicecache"
	"fleet-tracking-backend/internal/fetcher"
	"fleet-tracking-backend/internal/logger"
	"fleet-tracking-backend/internal/notification"
	"fleet-tracking-backend/internal/session"
	"fleet-tracking-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Debug:  cfg.Log.Debug,
		Output: cfg.Log.Output,
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize logger")
	}
	logger.Info().Str("path", configPath).Msg("configuration loaded")

	if cfg.API.URL == "" {
		logger.Fatal().Msg("api.url must be configured")
	}

	// Subscriptions always live in the database, the device list may not.
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore, closeStore, err := openStore(ctx, cfg, gormDB)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to initialize device store")
	}
	defer closeStore()
	logger.Info().Str("backend", cfg.Storage.Backend).Str("key", cfg.Storage.Key).Msg("device store initialized")

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	hubOpts := devicecache.Options{
		Key:          cfg.Storage.Key,
		FetchTimeout: cfg.Poller.FetchTimeout,
	}
	if cfg.PushConfigured() {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
		pool.Start(ctx)
		hubOpts.Notifier = pool
		logger.Info().Int("workers", cfg.WorkerPool.Size).Msg("drive status notifications enabled")
	} else if cfg.Push.Enabled {
		logger.Warn().Msg("push enabled but VAPID keys are missing, notifications disabled")
	}

	hub := devicecache.NewHub(fetcher.NewClient(&cfg.API), appStore, hubOpts)
	sessions := session.NewManager(ctx, hub, cfg.Poller.Interval, session.WithIdleTimeout(cfg.Poller.SessionIdle))

	handler := api.NewHandler(hub, sessions, gormDB, &webpushOptions)
	router := api.NewRouter(&cfg.Server, handler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server Shutdown")
	}
	sessions.CloseAll()
	cancel()

	logger.Info().Msg("server gracefully stopped")
}

// openStore builds the configured device store and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config, gormDB *gorm.DB) (store.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendDatabase:
		return store.NewGormStore(gormDB), func() {}, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Storage.RedisAddr,
			DB:   cfg.Storage.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Storage.RedisAddr, err)
		}
		return store.NewRedisStore(rdb, cfg.Storage.RedisPrefix), func() { rdb.Close() }, nil
	case config.BackendMemory:
		return store.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
