package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sage-erp/pharmacy/internal/catalog"
	"github.com/sage-erp/pharmacy/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, status *Status) ([]Order, error)
	CountOrders(ctx context.Context, status *Status) (int, error)
	ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// OpenOrders returns the provider's ORDERED orders, oldest first.
	OpenOrders(ctx context.Context, providerName string) ([]Order, error)
	// LockStatus reads the order status and holds its row until commit.
	LockStatus(ctx context.Context, id int64) (Status, error)
	CreateOrder(ctx context.Context, providerName string) (Order, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	DeleteOrder(ctx context.Context, id int64) error
	DeleteLine(ctx context.Context, orderID int64, offerName string) error
	SetLineQuantity(ctx context.Context, orderID int64, offerName string, quantity int) error
	InsertReceipt(ctx context.Context, receipt Receipt) (int64, error)
}

// CatalogPort resolves offers to their owning provider.
type CatalogPort interface {
	OwnerOf(ctx context.Context, offerID int64) (catalog.Offer, error)
	ResolveOffer(ctx context.Context, name string, providerID int64) (catalog.Offer, error)
}

// ReceiptStore keeps uploaded receipt files.
type ReceiptStore interface {
	Save(ctx context.Context, filename string, body io.Reader) error
	Remove(ctx context.Context, filename string) error
	Open(ctx context.Context, filename string) (io.ReadCloser, error)
}

// BillRenderer turns a bill into a PDF document.
type BillRenderer interface {
	RenderBill(ctx context.Context, bill Bill) ([]byte, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the order lifecycle.
type Service struct {
	repo     RepositoryPort
	catalog  CatalogPort
	receipts ReceiptStore
	renderer BillRenderer
	audit    AuditPort
	logger   *slog.Logger
	validate *validator.Validate
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Receipts ReceiptStore
	Renderer BillRenderer
	Audit    AuditPort
	Logger   *slog.Logger
}

// NewService constructs the order service.
func NewService(repo RepositoryPort, catalog CatalogPort, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		receipts: deps.Receipts,
		renderer: deps.Renderer,
		audit:    deps.Audit,
		logger:   logger,
		validate: validator.New(),
	}
}

// Transition moves an order to target if the workflow allows it. Only the
// status is persisted. The check runs against the locked row so a concurrent
// sweep or transition cannot be overwritten.
func (s *Service) Transition(ctx context.Context, orderID int64, target Status) (Order, error) {
	if _, err := ParseStatus(string(target)); err != nil {
		return Order{}, err
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	var from Status
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockStatus(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(current, target) {
			return fmt.Errorf("order %d has status %s, cannot move to %s: %w", orderID, current, target, ErrInvalidTransition)
		}
		from = current
		return tx.UpdateStatus(ctx, orderID, target)
	})
	if err != nil {
		return Order{}, err
	}
	order.Status = target
	s.recordAudit(ctx, "ORDER_STATUS", orderID, map[string]any{"from": from, "to": target})
	return order, nil
}

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns orders, optionally narrowed to one status.
func (s *Service) ListOrders(ctx context.Context, status *Status) ([]Order, error) {
	if status != nil {
		if _, err := ParseStatus(string(*status)); err != nil {
			return nil, err
		}
	}
	return s.repo.ListOrders(ctx, status)
}

// CountOrders counts orders, optionally narrowed to one status.
func (s *Service) CountOrders(ctx context.Context, status *Status) (int, error) {
	if status != nil {
		if _, err := ParseStatus(string(*status)); err != nil {
			return 0, err
		}
	}
	return s.repo.CountOrders(ctx, status)
}

// DeleteOrder removes an order and its lines.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := s.repo.GetOrder(ctx, id); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "ORDER_DELETE", id, nil)
	return nil
}

// AddLine appends one offer to an editable order. The offer must belong to
// the order's provider.
func (s *Service) AddLine(ctx context.Context, orderID, offerID int64, quantity int) (Line, error) {
	if quantity <= 0 {
		return Line{}, fmt.Errorf("quantity %d: %w", quantity, ErrValidation)
	}
	order, err := s.editableOrder(ctx, orderID)
	if err != nil {
		return Line{}, err
	}
	offer, err := s.catalog.OwnerOf(ctx, offerID)
	if err != nil {
		return Line{}, err
	}
	if offer.ProviderName != order.ProviderName {
		return Line{}, fmt.Errorf("offer %d belongs to %s, not %s: %w", offerID, offer.ProviderName, order.ProviderName, ErrValidation)
	}
	line := Line{OrderID: orderID, OfferID: offerID, OfferName: offer.Name, Quantity: quantity, PriceWithoutTax: offer.PriceWithoutTax, PriceWithTax: offer.PriceWithTax}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := lockEditable(ctx, tx, orderID); err != nil {
			return err
		}
		id, err := tx.InsertLine(ctx, line)
		if err != nil {
			return err
		}
		line.ID = id
		return nil
	})
	if err != nil {
		return Line{}, err
	}
	return line, nil
}

// RemoveLine drops the lines whose offer is named offerName.
func (s *Service) RemoveLine(ctx context.Context, orderID int64, offerName string) error {
	if _, err := s.editableOrder(ctx, orderID); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := lockEditable(ctx, tx, orderID); err != nil {
			return err
		}
		return tx.DeleteLine(ctx, orderID, offerName)
	})
}

// LineQuantity sets the quantity of the line for one offer name.
type LineQuantity struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// SetLineQuantities updates several line quantities at once.
func (s *Service) SetLineQuantities(ctx context.Context, orderID int64, updates []LineQuantity) error {
	for _, u := range updates {
		if err := s.check(u); err != nil {
			return err
		}
	}
	if _, err := s.editableOrder(ctx, orderID); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := lockEditable(ctx, tx, orderID); err != nil {
			return err
		}
		for _, u := range updates {
			if err := tx.SetLineQuantity(ctx, orderID, u.Name, u.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// AttachReceipt stores an uploaded receipt under a generated name that keeps
// the original extension.
func (s *Service) AttachReceipt(ctx context.Context, orderID int64, originalName string, body io.Reader) (Receipt, error) {
	if s.receipts == nil {
		return Receipt{}, errors.New("orders: receipt store not configured")
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Receipt{}, err
	}
	if order.Status == StatusArchived {
		return Receipt{}, fmt.Errorf("order %d is archived: %w", orderID, ErrInvalidTransition)
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		return Receipt{}, fmt.Errorf("receipt %q has no extension: %w", originalName, ErrValidation)
	}
	filename := uuid.NewString() + ext
	if err := s.receipts.Save(ctx, filename, body); err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{Filename: filename, OrderID: &orderID}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		receipt.ID = id
		return nil
	})
	if err != nil {
		if rmErr := s.receipts.Remove(ctx, filename); rmErr != nil {
			s.logger.Warn("remove orphan receipt", slog.String("filename", filename), slog.Any("error", rmErr))
		}
		return Receipt{}, err
	}
	s.recordAudit(ctx, "RECEIPT_ATTACH", orderID, map[string]any{"filename": filename})
	return receipt, nil
}

// ListReceipts returns receipts still owned by the order.
func (s *Service) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListReceipts(ctx, orderID)
}

// OpenReceipt streams a stored receipt file.
func (s *Service) OpenReceipt(ctx context.Context, filename string) (io.ReadCloser, error) {
	if s.receipts == nil {
		return nil, errors.New("orders: receipt store not configured")
	}
	return s.receipts.Open(ctx, filename)
}

func (s *Service) editableOrder(ctx context.Context, orderID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !order.Status.Editable() {
		return Order{}, fmt.Errorf("order %d has status %s, lines are frozen: %w", orderID, order.Status, ErrInvalidTransition)
	}
	return order, nil
}

func lockEditable(ctx context.Context, tx TxRepository, orderID int64) error {
	status, err := tx.LockStatus(ctx, orderID)
	if err != nil {
		return err
	}
	if !status.Editable() {
		return fmt.Errorf("order %d has status %s, lines are frozen: %w", orderID, status, ErrInvalidTransition)
	}
	return nil
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s failed %s: %w", verrs[0].Namespace(), verrs[0].Tag(), ErrValidation)
		}
		return fmt.Errorf("%v: %w", err, ErrValidation)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
