package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/autoservis/autoservis/internal/app"
	"github.com/autoservis/autoservis/internal/auth"
	jobmetrics "github.com/autoservis/autoservis/internal/jobs"
	"github.com/autoservis/autoservis/internal/platform/cache"
	"github.com/autoservis/autoservis/internal/platform/db"
	"github.com/autoservis/autoservis/internal/stats"
	"github.com/autoservis/autoservis/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.Database("autoservis-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	authService := auth.NewService(auth.ServiceConfig{
		Repo:   auth.NewRepository(pool),
		TTL:    cfg.SessionTTL,
		Logger: logger,
	})
	statsService := stats.NewService(stats.NewRepository(pool), cache.NewVersioned(redisClient, "stats", cfg.StatsCacheTTL))

	sweepJob := jobs.NewSessionSweepJob(authService, logger, metrics)
	invalidateJob := jobs.NewStatsInvalidateJob(statsService, logger, metrics)

	sweepTask, err := jobs.NewSessionSweepTask(time.Time{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Asynq(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskStatsInvalidate, Handler: invalidateJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SessionSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
