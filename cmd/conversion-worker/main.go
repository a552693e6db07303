// Package main provides the conversion worker entrypoint. Workers consume the
// job queue and run format conversions; they share the database, blob store,
// and queue with the API but serve no HTTP traffic.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docuforge/conversion-engine/internal/blob"
	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/convert"
	"github.com/docuforge/conversion-engine/internal/indexer"
	"github.com/docuforge/conversion-engine/internal/jobs"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/queue"
	"github.com/docuforge/conversion-engine/internal/storage"
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
		ServiceName: cfg.Observability.ServiceName + "-worker",
	})

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("queue", cfg.Queue.Driver).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("Starting conversion worker")

	db, err := storage.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := storage.Migrate(context.Background(), db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply schema")
	}
	repos := storage.NewRepositories(db)

	blobs, err := blob.NewFSStore(cfg.Blob.Root)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open blob store")
	}

	var jobQueue queue.Queue
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
	} else {
		// A memory queue in a standalone worker drains nothing; it exists so
		// the worker can run embedded in tests and single-process setups.
		logger.Warn().Msg("Using in-memory queue; no jobs will arrive from other processes")
		jobQueue = queue.NewMemoryQueue()
	}
	defer jobQueue.Close()

	engine := convert.NewEngine(cfg.Convert, logger)
	ix := indexer.New(cfg.Indexer, cfg.OCR, engine.Raster(), logger)
	pool := jobs.NewPool(cfg.Worker, repos, blobs, jobQueue, engine, ix, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	cancel()
	<-done
	logger.Info().Msg("Worker stopped")
}
