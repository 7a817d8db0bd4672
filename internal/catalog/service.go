package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/sage-erp/pharmacy/internal/shared"
)

// RepositoryPort describes the reads Service needs.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CountStock(ctx context.Context, filter StockFilter) (int, error)
	ListStock(ctx context.Context, filter StockFilter, limit, offset int) ([]StockItem, error)
	GetStockItems(ctx context.Context, ids []int64) ([]StockItem, error)
	LowStock(ctx context.Context) ([]StockItem, error)
	StockNames(ctx context.Context) ([]string, error)
	GetProvider(ctx context.Context, id int64) (Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	GetOffer(ctx context.Context, id int64) (Offer, error)
	FindOffer(ctx context.Context, providerID int64, name string) (Offer, error)
	ListOffers(ctx context.Context, providerID int64) ([]Offer, error)
	OffersMatching(ctx context.Context, stockItemID int64) ([]Offer, error)
}

// TxRepository exposes transactional writes.
type TxRepository interface {
	CreateStockItem(ctx context.Context, item StockItem) (int64, error)
	UpdateStockItem(ctx context.Context, item StockItem) error
	DeleteStockItems(ctx context.Context, ids []int64) error
	CreateProvider(ctx context.Context, p Provider) (int64, error)
	UpdateProvider(ctx context.Context, p Provider) error
	// RenameOrders moves every order of oldName to newName.
	RenameOrders(ctx context.Context, oldName, newName string) error
	// CountOrderLines counts order lines pointing at the provider's offers.
	CountOrderLines(ctx context.Context, providerID int64) (int, error)
	DeleteProvider(ctx context.Context, id int64) error
	DeleteOpenOrders(ctx context.Context, providerName string) error
	DeleteOffers(ctx context.Context, providerID int64) error
	InsertOffer(ctx context.Context, offer Offer) (int64, error)
	SetMatches(ctx context.Context, offerID int64, stockItemIDs []int64) error
}

// AuditPort records catalog changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes catalog use cases.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	validate *validator.Validate
	pageSize int
}

// NewService constructs the catalog service. pageSize bounds stock listings.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, pageSize int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Service{repo: repo, audit: audit, logger: logger, validate: validator.New(), pageSize: pageSize}
}

// ListStock returns one page of stock items matching filter.
func (s *Service) ListStock(ctx context.Context, filter StockFilter, page int) (StockPage, error) {
	total, err := s.repo.CountStock(ctx, filter)
	if err != nil {
		return StockPage{}, err
	}
	p, err := shared.NewPagination(page, s.pageSize, total)
	if err != nil {
		return StockPage{}, err
	}
	items, err := s.repo.ListStock(ctx, filter, p.PerPage, p.Offset())
	if err != nil {
		return StockPage{}, err
	}
	return StockPage{Items: items, Page: p.Page, Pages: p.TotalPages, Total: total}, nil
}

// CountStock counts stock items matching filter.
func (s *Service) CountStock(ctx context.Context, filter StockFilter) (int, error) {
	return s.repo.CountStock(ctx, filter)
}

// GetStockItem returns one stock item.
func (s *Service) GetStockItem(ctx context.Context, id int64) (StockItem, error) {
	items, err := s.repo.GetStockItems(ctx, []int64{id})
	if err != nil {
		return StockItem{}, err
	}
	if len(items) == 0 {
		return StockItem{}, fmt.Errorf("stock item %d: %w", id, ErrNotFound)
	}
	return items[0], nil
}

// LowStock returns items at or below their alert threshold.
func (s *Service) LowStock(ctx context.Context) ([]StockItem, error) {
	return s.repo.LowStock(ctx)
}

// StockNames returns every stock item name.
func (s *Service) StockNames(ctx context.Context) ([]string, error) {
	return s.repo.StockNames(ctx)
}

// GetStockItems loads items by id. Unknown ids are skipped.
func (s *Service) GetStockItems(ctx context.Context, ids []int64) ([]StockItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.repo.GetStockItems(ctx, ids)
}

// CreateStockItem validates and stores a new item.
func (s *Service) CreateStockItem(ctx context.Context, input StockItemInput) (StockItem, error) {
	if err := s.check(input); err != nil {
		return StockItem{}, err
	}
	item := StockItem{
		Name:         input.Name,
		DCI:          input.DCI,
		Location:     input.Location,
		Family:       input.Family,
		Nomenclature: input.Nomenclature,
		Reference:    input.Reference,
		SellingPrice: input.SellingPrice,
		CostPrice:    input.CostPrice,
		Quantity:     input.Quantity,
		Real:         input.Real,
		Min:          input.Min,
		Max:          input.Max,
		Alert:        input.Alert,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateStockItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		return nil
	})
	if err != nil {
		return StockItem{}, err
	}
	s.recordAudit(ctx, "STOCK_CREATE", item.ID, map[string]any{"name": item.Name})
	return item, nil
}

// UpdateStockItem applies patch to an existing item.
func (s *Service) UpdateStockItem(ctx context.Context, id int64, patch StockItemPatch) (StockItem, error) {
	if err := s.check(patch); err != nil {
		return StockItem{}, err
	}
	current, err := s.GetStockItem(ctx, id)
	if err != nil {
		return StockItem{}, err
	}
	item := patch.apply(current)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStockItem(ctx, item)
	})
	if err != nil {
		return StockItem{}, err
	}
	return item, nil
}

// DeleteStockItems removes the given items.
func (s *Service) DeleteStockItems(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("no stock item ids: %w", ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteStockItems(ctx, ids)
	})
}

// CreateProvider stores a provider. Duplicate names surface as shared.ErrConflict.
func (s *Service) CreateProvider(ctx context.Context, input ProviderInput) (Provider, error) {
	if err := s.check(input); err != nil {
		return Provider{}, err
	}
	p := Provider{Name: input.Name, Email: input.Email, MinPurchase: input.MinPurchase, MinQuantity: input.MinQuantity}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateProvider(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return Provider{}, err
	}
	s.recordAudit(ctx, "PROVIDER_CREATE", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// UpdateProvider overwrites a provider's details. Orders reference providers
// by name, so a rename is carried onto them in the same transaction.
func (s *Service) UpdateProvider(ctx context.Context, id int64, input ProviderInput) (Provider, error) {
	if err := s.check(input); err != nil {
		return Provider{}, err
	}
	current, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return Provider{}, err
	}
	p := Provider{ID: id, Name: input.Name, Email: input.Email, MinPurchase: input.MinPurchase, MinQuantity: input.MinQuantity}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateProvider(ctx, p); err != nil {
			return err
		}
		if current.Name == p.Name {
			return nil
		}
		return tx.RenameOrders(ctx, current.Name, p.Name)
	})
	if err != nil {
		return Provider{}, err
	}
	s.recordAudit(ctx, "PROVIDER_UPDATE", id, map[string]any{"from": current.Name, "to": p.Name})
	return p, nil
}

// GetProvider returns a provider by id.
func (s *Service) GetProvider(ctx context.Context, id int64) (Provider, error) {
	return s.repo.GetProvider(ctx, id)
}

// ProviderByName returns the provider called name.
func (s *Service) ProviderByName(ctx context.Context, name string) (Provider, error) {
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		return Provider{}, err
	}
	for _, p := range providers {
		if p.Name == name {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("provider %q: %w", name, ErrNotFound)
}

// ListProviders returns every provider.
func (s *Service) ListProviders(ctx context.Context) ([]Provider, error) {
	return s.repo.ListProviders(ctx)
}

// ListOffers returns a provider's offers.
func (s *Service) ListOffers(ctx context.Context, providerID int64) ([]Offer, error) {
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.repo.ListOffers(ctx, providerID)
}

// DeleteProvider removes a provider with its open orders and offers. It is
// refused with ErrConflict while later orders still reference the offers.
func (s *Service) DeleteProvider(ctx context.Context, id int64) error {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := dropOpenOrders(ctx, tx, p); err != nil {
			return err
		}
		return tx.DeleteProvider(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PROVIDER_DELETE", id, map[string]any{"name": p.Name})
	return nil
}

// ReplaceOffers swaps a provider's whole catalog. Orders still ORDERED or
// PENDING for that provider reference the old offers and are dropped first.
// Lines of orders past PENDING keep their offers, so the swap is refused with
// ErrConflict while any exist.
func (s *Service) ReplaceOffers(ctx context.Context, providerID int64, inputs []OfferInput) ([]Offer, error) {
	for i := range inputs {
		if err := s.check(inputs[i]); err != nil {
			return nil, fmt.Errorf("offer %d: %w", i, err)
		}
	}
	p, err := s.repo.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	offers := make([]Offer, 0, len(inputs))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := dropOpenOrders(ctx, tx, p); err != nil {
			return err
		}
		if err := tx.DeleteOffers(ctx, providerID); err != nil {
			return err
		}
		for _, in := range inputs {
			offer := Offer{
				ProviderID:      providerID,
				ProviderName:    p.Name,
				Name:            in.Name,
				Quantity:        in.Quantity,
				PriceWithoutTax: in.PriceWithoutTax,
				PriceWithTax:    in.PriceWithTax,
				ExpiresAt:       in.ExpiresAt,
			}
			id, err := tx.InsertOffer(ctx, offer)
			if err != nil {
				return err
			}
			offer.ID = id
			offers = append(offers, offer)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("provider offers replaced", slog.String("provider", p.Name), slog.Int("offers", len(offers)))
	s.recordAudit(ctx, "OFFERS_REPLACE", providerID, map[string]any{"count": len(offers)})
	return offers, nil
}

// UpdateMatches sets the stock item correspondence of each offer.
func (s *Service) UpdateMatches(ctx context.Context, updates []MatchUpdate) error {
	for i := range updates {
		if err := s.check(updates[i]); err != nil {
			return err
		}
		if _, err := s.repo.GetOffer(ctx, updates[i].OfferID); err != nil {
			return err
		}
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, u := range updates {
			if err := tx.SetMatches(ctx, u.OfferID, dedupe(u.StockItemIDs)); err != nil {
				return err
			}
		}
		return nil
	})
}

// OwnerOf returns the offer with its owning provider filled in.
func (s *Service) OwnerOf(ctx context.Context, offerID int64) (Offer, error) {
	return s.repo.GetOffer(ctx, offerID)
}

// ResolveOffer finds the first offer of providerID named name.
func (s *Service) ResolveOffer(ctx context.Context, name string, providerID int64) (Offer, error) {
	if name == "" || providerID <= 0 {
		return Offer{}, fmt.Errorf("offer reference needs name and provider: %w", ErrValidation)
	}
	return s.repo.FindOffer(ctx, providerID, name)
}

// OffersMatching returns offers whose matching set contains stockItemID.
func (s *Service) OffersMatching(ctx context.Context, stockItemID int64) ([]Offer, error) {
	return s.repo.OffersMatching(ctx, stockItemID)
}

func dropOpenOrders(ctx context.Context, tx TxRepository, p Provider) error {
	if err := tx.DeleteOpenOrders(ctx, p.Name); err != nil {
		return err
	}
	n, err := tx.CountOrderLines(ctx, p.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("provider %s has %d lines on received or closed orders: %w", p.Name, n, ErrConflict)
	}
	return nil
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s failed %s: %w", verrs[0].Field(), verrs[0].Tag(), ErrValidation)
		}
		return fmt.Errorf("%v: %w", err, ErrValidation)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "catalog", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (p StockItemPatch) apply(item StockItem) StockItem {
	if p.Location != nil {
		item.Location = *p.Location
	}
	if p.SellingPrice != nil {
		item.SellingPrice = *p.SellingPrice
	}
	if p.CostPrice != nil {
		item.CostPrice = *p.CostPrice
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Real != nil {
		item.Real = *p.Real
	}
	if p.Min != nil {
		item.Min = *p.Min
	}
	if p.Max != nil {
		item.Max = *p.Max
	}
	if p.Alert != nil {
		item.Alert = *p.Alert
	}
	return item
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
