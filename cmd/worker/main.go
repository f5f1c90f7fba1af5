package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erp-system/erp/internal/app"
	"github.com/erp-system/erp/internal/auth"
	"github.com/erp-system/erp/internal/betonara"
	jobmetrics "github.com/erp-system/erp/internal/jobs"
	"github.com/erp-system/erp/internal/platform/db"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithApplicationName("erp-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	refreshJob := jobs.NewRefreshTotalsJob(betonara.NewRepository(pool), logger, metrics)
	purgeJob := jobs.NewPurgeSessionsJob(auth.NewService(auth.NewRepository(pool)), logger, metrics)
	purgeJob.Keys = shared.NewIdempotencyStore(pool)

	nightly, err := jobs.NewRefreshTotalsTask(jobs.RefreshTotalsPayload{Reason: "nightly"})
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBetonaraRefreshTotals, Handler: refreshJob.Handle},
			{Type: jobs.TaskAuthPurgeSessions, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: nightly},
			{Spec: "@hourly", Task: jobs.NewPurgeSessionsTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadTimeout: cfg.AppReadTimeout}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		if err := metricsServer.Close(); err != nil {
			logger.Warn("worker metrics close", slog.Any("error", err))
		}
	}()

	logger.Info("starting worker", slog.String("metrics_addr", cfg.WorkerMetricsAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
