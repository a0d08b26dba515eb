package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/autobid/autobid-admin/internal/app"
	"github.com/autobid/autobid-admin/internal/auctions"
	"github.com/autobid/autobid-admin/internal/dashboard"
	jobmetrics "github.com/autobid/autobid-admin/internal/jobs"
	"github.com/autobid/autobid-admin/internal/platform/cache"
	"github.com/autobid/autobid-admin/internal/platform/db"
	"github.com/autobid/autobid-admin/jobs"
)

func main() {
	snapshotDay := flag.String("snapshot", "", "enqueue a metrics:snapshot task for YYYY-MM-DD (\"today\" for the current day) and exit")
	flag.Parse()

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
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	if *snapshotDay != "" {
		day := *snapshotDay
		if day == "today" {
			day = ""
		}
		client := jobs.NewClient(redisOpts)
		defer func() { _ = client.Close() }()
		info, err := client.EnqueueMetricsSnapshot(ctx, day)
		if err != nil {
			logger.Error("enqueue metrics snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("enqueued metrics snapshot", slog.String("task_id", info.ID))
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: cfg.PGMaxConnIdle})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
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

	auctionService := auctions.NewService(
		auctions.NewRepository(pool),
		auctions.NewCache(redisClient, cfg.MonitorCacheTTL, logger),
		logger,
	)
	refreshJob := jobs.NewMonitoringRefreshJob(auctionService, logger, metrics)
	snapshotJob := jobs.NewMetricsSnapshotJob(dashboard.NewRepository(pool), logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Jobs:      jobs.Jobs{Refresh: refreshJob, Snapshot: snapshotJob},
		Schedule: jobs.Schedule{
			RefreshEvery: cfg.MonitorRefreshInterval,
			SnapshotCron: cfg.MetricsSnapshotCron,
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
