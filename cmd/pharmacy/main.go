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
	"github.com/sage-erp/pharmacy/internal/replenishment"
	"github.com/sage-erp/pharmacy/internal/shared"
	"github.com/sage-erp/pharmacy/jobs"
	"github.com/sage-erp/pharmacy/report"
)

const idempotencyRetention = 24 * time.Hour

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("pharmacy api", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger, logger, cfg.StockPageSize)

	receipts, err := orders.NewDiskReceiptStore(cfg.ReceiptDir)
	if err != nil {
		return err
	}
	reportClient := report.NewClient(cfg.GotenbergURL)
	billRenderer, err := report.NewBillRenderer(reportClient)
	if err != nil {
		return err
	}
	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, catalogService, orders.ServiceDeps{
		Receipts: receipts,
		Renderer: billRenderer,
		Audit:    auditLogger,
		Logger:   logger,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	matcher := replenishment.NewMatcher(catalogService, ordersRepo, logger)
	archiveService := archive.NewService(archive.NewRepository(pool), auditLogger, logger)
	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Metrics:              metrics,
		CatalogHandler:       catalog.NewHandler(logger, catalogService),
		OrdersHandler:        orders.NewHandler(logger, ordersService, idempotencyStore, jobClient),
		ReplenishmentHandler: replenishment.NewHandler(logger, matcher),
		ArchiveHandler:       archive.NewHandler(logger, archiveService),
		ReportHandler:        report.NewHandler(reportClient, logger),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := idempotencyStore.Cleanup(gctx, idempotencyRetention); err != nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
				}
			}
		}
	})
	return g.Wait()
}
