package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/docuforge/conversion-engine/internal/cache"
	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/extract"
	"github.com/docuforge/conversion-engine/internal/jobs"
	"github.com/docuforge/conversion-engine/internal/modify"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/queue"
	"github.com/docuforge/conversion-engine/internal/storage"

	blobstore "github.com/docuforge/conversion-engine/internal/blob"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("queue", cfg.Queue.Driver).
		Msg("Starting conversion API")

	db, err := storage.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := storage.Migrate(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply schema")
	}
	repos := storage.NewRepositories(db)

	blobs, err := blobstore.NewFSStore(cfg.Blob.Root)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open blob store")
	}

	var jobQueue queue.Queue
	var statusCache cache.Client
	if cfg.Queue.Driver == "redis" {
		jobQueue, err = queue.NewRedisQueue(queue.RedisConfig{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			PoolSize: cfg.Queue.Redis.PoolSize,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis queue")
		}
		statusCache, err = cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			PoolSize: cfg.Queue.Redis.PoolSize,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis cache")
		}
	} else {
		jobQueue = queue.NewMemoryQueue()
		statusCache = cache.NewMemoryClient(10000)
	}
	defer jobQueue.Close()
	defer statusCache.Close()

	extractor := extract.New(cfg.Extract, logger)
	applier := modify.NewApplier(
		&modify.DirectStrategy{},
		modify.NewOverlayStrategy(cfg.Blob.TempDir),
		modify.NewHTMLStrategy(cfg.Convert.WkhtmltopdfPath, cfg.Convert.HopTimeout, cfg.Blob.TempDir),
		extractor,
		logger,
	)
	service := jobs.NewService(repos, jobQueue, statusCache, cfg.Worker, logger)

	router := NewRouter(logger, cfg, Deps{
		Repos:     repos,
		Blobs:     blobs,
		Service:   service,
		Extractor: extractor,
		Applier:   applier,
		Ready:     db.Ping,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
