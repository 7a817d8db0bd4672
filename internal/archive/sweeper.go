package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jobmetrics "github.com/sage-erp/pharmacy/internal/jobs"
	"github.com/sage-erp/pharmacy/internal/orders"
	"github.com/sage-erp/pharmacy/internal/shared"
)

// DefaultLockTTL bounds how long one sweep may hold the run lock.
const DefaultLockTTL = 5 * time.Minute

// Locker guards sweeps against overlapping runs.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// SweepRepository is the persistence the sweeper needs.
type SweepRepository interface {
	FinishedOrders(ctx context.Context) ([]orders.Order, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockOrderStatus(ctx context.Context, orderID int64) (orders.Status, error)
	CreateArchive(ctx context.Context, a ArchivedOrder) (int64, error)
	MoveReceipts(ctx context.Context, orderID, archiveID int64) (int, error)
	MarkArchived(ctx context.Context, orderID int64) error
	LockArchive(ctx context.Context, id int64) error
	ReplaceReceipts(ctx context.Context, archiveID int64, receiptIDs []int64) error
	DeleteArchive(ctx context.Context, id int64) error
}

// Sweeper archives FINISHED orders.
type Sweeper struct {
	repo    SweepRepository
	locker  Locker
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	lockTTL time.Duration
}

// NewSweeper constructs a Sweeper. A nil locker runs without the lock.
func NewSweeper(repo SweepRepository, locker Locker, metrics *jobmetrics.Metrics, logger *slog.Logger, lockTTL time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Sweeper{repo: repo, locker: locker, metrics: metrics, logger: logger, lockTTL: lockTTL}
}

// Sweep archives every FINISHED order, one transaction per order. A failed
// order is logged and left FINISHED so the next run picks it up again.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.ArchiveSweepLockKey, s.lockTTL)
		if errors.Is(err, shared.ErrLockHeld) {
			s.logger.Info("archive sweep already running")
			s.metrics.IncSweepSkipped()
			result.Skipped = true
			return result, nil
		}
		if err != nil {
			return result, fmt.Errorf("archive sweep lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release archive sweep lock", slog.Any("error", err))
			}
		}()
	}

	defer func() {
		s.metrics.AddArchived(len(result.Archived))
		s.metrics.AddArchiveFailures(len(result.Failed))
	}()

	finished, err := s.repo.FinishedOrders(ctx)
	if err != nil {
		return result, err
	}
	for _, order := range finished {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		archiveID, err := s.archiveOne(ctx, order)
		if err != nil {
			s.logger.Error("archive order", slog.Int64("order_id", order.ID), slog.Any("error", err))
			result.Failed = append(result.Failed, order.ID)
			continue
		}
		s.logger.Info("order archived", slog.Int64("order_id", order.ID), slog.Int64("archive_id", archiveID))
		result.Archived = append(result.Archived, order.ID)
	}
	return result, nil
}

func (s *Sweeper) archiveOne(ctx context.Context, order orders.Order) (int64, error) {
	var archiveID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.LockOrderStatus(ctx, order.ID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(status, orders.StatusArchived) {
			return fmt.Errorf("order %d is %s: %w", order.ID, status, orders.ErrInvalidTransition)
		}
		archiveID, err = tx.CreateArchive(ctx, ArchivedOrder{ProviderName: order.ProviderName, OrderCreatedAt: order.CreatedAt})
		if err != nil {
			return err
		}
		if _, err := tx.MoveReceipts(ctx, order.ID, archiveID); err != nil {
			return err
		}
		return tx.MarkArchived(ctx, order.ID)
	})
	return archiveID, err
}
