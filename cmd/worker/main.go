package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/sage-erp/pharmacy/internal/app"
	"github.com/sage-erp/pharmacy/internal/archive"
	"github.com/sage-erp/pharmacy/internal/catalog"
	"github.com/sage-erp/pharmacy/internal/observability"
	"github.com/sage-erp/pharmacy/internal/orders"
	"github.com/sage-erp/pharmacy/internal/platform/cache"
	"github.com/sage-erp/pharmacy/internal/platform/db"
	"github.com/sage-erp/pharmacy/internal/shared"
	"github.com/sage-erp/pharmacy/jobs"
	"github.com/sage-erp/pharmacy/report"
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

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	sweeper := archive.NewSweeper(archive.NewRepository(pool), shared.NewRedisLocker(redisClient), metrics.Jobs(), logger, cfg.ArchiveLockTTL)
	sweepJob := jobs.NewArchiveSweepJob(sweeper, logger, metrics.Jobs())

	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger, logger, cfg.StockPageSize)
	billRenderer, err := report.NewBillRenderer(report.NewClient(cfg.GotenbergURL))
	if err != nil {
		return err
	}
	ordersService := orders.NewService(orders.NewRepository(pool), catalogService, orders.ServiceDeps{
		Renderer: billRenderer,
		Audit:    auditLogger,
		Logger:   logger,
	})
	mailer := jobs.NewSMTPMailer(jobs.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	billJob := jobs.NewOrderBillJob(ordersService, catalogService, mailer, logger, metrics.Jobs())

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskArchiveSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskOrderBill, Handler: billJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ArchiveSweepSpec, Task: jobs.NewArchiveSweepTask(), Options: []asynq.Option{asynq.Unique(time.Minute)}},
		},
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	if cfg.WorkerMetricsAddr != "" {
		server := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
