package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/pelita-foundation/pelita/internal/app"
	"github.com/pelita-foundation/pelita/internal/authz"
	jobmetrics "github.com/pelita-foundation/pelita/internal/jobs"
	"github.com/pelita-foundation/pelita/internal/platform/cache"
	"github.com/pelita-foundation/pelita/internal/platform/db"
	"github.com/pelita-foundation/pelita/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := authz.NewStore(pool)
	resolver := authz.NewResolver(store, logger, nil)
	metrics := jobmetrics.NewMetrics(nil)

	reviewJob := jobs.NewAccessReviewJob(resolver, pool, logger, metrics)

	reviewTask, err := jobs.NewAccessReviewTask(jobs.AccessReviewPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build access review task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAccessReview, Handler: reviewJob.Handle},
			{Type: jobs.TaskSessionCleanup, Handler: func(ctx context.Context, t *asynq.Task) error {
				return jobs.CleanupExpiredSessions(ctx, pool, logger)
			}},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: reviewTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: jobs.NewSessionCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
