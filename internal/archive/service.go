package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sage-erp/pharmacy/internal/shared"
)

// RepositoryPort describes archive persistence.
type RepositoryPort interface {
	SweepRepository
	ListArchives(ctx context.Context) ([]ArchivedOrder, error)
	GetArchive(ctx context.Context, id int64) (ArchivedOrder, error)
}

// AuditPort records archive changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes archived orders.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns every archived order with its receipts.
func (s *Service) List(ctx context.Context) ([]ArchivedOrder, error) {
	return s.repo.ListArchives(ctx)
}

// Get returns one archived order.
func (s *Service) Get(ctx context.Context, id int64) (ArchivedOrder, error) {
	return s.repo.GetArchive(ctx, id)
}

// SetReceipts makes receiptIDs the exact receipt set of the archive.
// Receipts taken from a live order are detached from it.
func (s *Service) SetReceipts(ctx context.Context, id int64, receiptIDs []int64) (ArchivedOrder, error) {
	for _, rid := range receiptIDs {
		if rid <= 0 {
			return ArchivedOrder{}, fmt.Errorf("receipt id %d: %w", rid, ErrValidation)
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockArchive(ctx, id); err != nil {
			return err
		}
		return tx.ReplaceReceipts(ctx, id, receiptIDs)
	})
	if err != nil {
		return ArchivedOrder{}, err
	}
	s.recordAudit(ctx, "ARCHIVE_RECEIPTS", id, map[string]any{"receipts": receiptIDs})
	return s.repo.GetArchive(ctx, id)
}

// Delete removes an archived order. Its receipts stay on disk unowned.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteArchive(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "ARCHIVE_DELETE", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "archived_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
