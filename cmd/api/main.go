package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"knitkart/internal/analysis"
	"knitkart/internal/authz"
	"knitkart/internal/cache"
	"knitkart/internal/config"
	"knitkart/internal/credential"
	"knitkart/internal/database"
	"knitkart/internal/handlers"
	"knitkart/internal/jobs"
	"knitkart/internal/log"
	"knitkart/internal/repository"
	"knitkart/internal/server"
	"knitkart/internal/service"
	"knitkart/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	codec, err := credential.NewCodec(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init credential codec")
	}

	users := repository.NewUserRepository(dbPool)
	sellers := repository.NewSellerRepository(dbPool)
	resets := repository.NewResetRepository(dbPool)
	images := repository.NewImageRepository(dbPool)

	authService := service.NewAuthService(users, resets, service.NewLogNotifier(logger), codec, service.AuthConfig{
		SessionTTL:     cfg.Session.TTL,
		RenewThreshold: cfg.Session.RenewThreshold,
		ResetTTL:       cfg.PasswordReset.TTL,
	}, logger)

	uploadService := service.NewUploadService(images, objectStore, service.UploadConfig{
		MaxSize:       cfg.Storage.MaxUploadSize,
		SigningSecret: cfg.Session.Secret,
	}, logger)

	scheduler := jobs.NewScheduler(logger)
	manager, local := newAnalysis(cfg, logger, redisClient, objectStore, scheduler)

	if err := scheduler.Add("0 */10 * * * *", "purge-password-resets", purgeResets(resets, logger)); err != nil {
		logger.Fatal().Err(err).Msg("schedule reset purge failed")
	}

	gate := authz.NewGate(sellers, authz.Paths{
		Login:      cfg.Session.LoginPath,
		Onboarding: cfg.Session.OnboardingPath,
		Home:       cfg.Session.HomePath,
	})

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:      logger,
		Cfg:      cfg,
		Auth:     authService,
		Sessions: authService,
		Gate:     gate,
		Analysis: manager,
		Uploads:  uploadService,
		Images:   images,
		Checks: []handlers.HealthCheck{
			{Name: "database", Ping: dbPool.Ping},
			{Name: "cache", Ping: func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }},
		},
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler.Start()

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, local, authService, dbPool, redisClient)
}

// newAnalysis wires the job store and dispatcher for the configured mode.
// In local mode the returned dispatcher runs jobs in this process.
func newAnalysis(
	cfg *config.AppConfig,
	logger zerolog.Logger,
	redisClient *redis.Client,
	objectStore *storage.ObjectStore,
	scheduler *jobs.Scheduler,
) (*jobs.Manager, *jobs.LocalDispatcher) {
	var store jobs.Store
	switch cfg.Analysis.Store {
	case config.JobStoreRedis:
		store = jobs.NewRedisStore(redisClient, "", cfg.Analysis.JobTTL)
	default:
		memory := jobs.NewMemoryStore(cfg.Analysis.JobTTL)
		if err := scheduler.Add("*/30 * * * * *", "sweep-analysis-jobs", jobs.SweepTask(memory, logger)); err != nil {
			logger.Fatal().Err(err).Msg("schedule job sweep failed")
		}
		store = memory
	}

	managerCfg := jobs.ManagerConfig{
		StaleAfter: cfg.Analysis.StaleAfter,
		MaxImages:  cfg.Analysis.MaxImages,
	}

	if cfg.Analysis.Mode == config.AnalysisModeStream {
		logger.Info().Str("stream", cfg.Analysis.Stream).Msg("analysis jobs dispatched to workers")
		return jobs.NewManager(store, jobs.NewStreamDispatcher(redisClient, cfg.Analysis.Stream), managerCfg, logger), nil
	}

	client := analysis.NewClient(analysis.Config{
		Endpoint: cfg.Analysis.Endpoint,
		APIKey:   cfg.Analysis.APIKey,
		Model:    cfg.Analysis.Model,
	}, &http.Client{Timeout: cfg.Analysis.Timeout}, objectStore, logger)

	executor := jobs.NewExecutor(store, client, cfg.Analysis.Timeout, logger)
	local := jobs.NewLocalDispatcher(executor, logger)
	return jobs.NewManager(store, local, managerCfg, logger), local
}

func purgeResets(resets *repository.ResetRepository, logger zerolog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		removed, err := resets.DeleteExpired(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("delete expired resets: %w", err)
		}
		if removed > 0 {
			logger.Debug().Int64("removed", removed).Msg("expired password resets purged")
		}
		return nil
	}
}

func waitForShutdown(
	logger zerolog.Logger,
	srv *server.HTTPServer,
	scheduler *jobs.Scheduler,
	local *jobs.LocalDispatcher,
	auth *service.AuthService,
	db *pgxpool.Pool,
	redisClient *redis.Client,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)

	// Running analyses finish within the executor timeout and must land
	// before the store goes away.
	if local != nil {
		local.Wait()
	}
	auth.Drain()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
