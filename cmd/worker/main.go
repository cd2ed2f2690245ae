package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"knitkart/internal/analysis"
	"knitkart/internal/cache"
	"knitkart/internal/config"
	"knitkart/internal/jobs"
	"knitkart/internal/log"
	"knitkart/internal/queue"
	"knitkart/internal/storage"
	"knitkart/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("process", "worker").Logger()

	if cfg.Analysis.Store != config.JobStoreRedis {
		logger.Fatal().Str("store", cfg.Analysis.Store).Msg("worker requires analysis.store redis")
	}

	client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	store := jobs.NewRedisStore(client, "", cfg.Analysis.JobTTL)
	analyzer := analysis.NewClient(analysis.Config{
		Endpoint: cfg.Analysis.Endpoint,
		APIKey:   cfg.Analysis.APIKey,
		Model:    cfg.Analysis.Model,
	}, &http.Client{Timeout: cfg.Analysis.Timeout}, objectStore, logger)
	executor := jobs.NewExecutor(store, analyzer, cfg.Analysis.Timeout, logger)

	processor := tasks.NewProcessor(store, executor, logger)
	consumer := queue.NewConsumer(client, queue.Options{
		Stream:        cfg.Analysis.Stream,
		Group:         cfg.Analysis.Group,
		Consumer:      cfg.Analysis.Consumer,
		ClaimInterval: cfg.Analysis.ClaimInterval,
		MinIdle:       cfg.Analysis.ClaimMinIdle,
	}, logger, processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("stream", cfg.Analysis.Stream).
		Str("group", cfg.Analysis.Group).
		Msg("analysis worker started")

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited")
}
