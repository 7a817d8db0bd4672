// Package replenishment proposes provider offers for low-stock items.
package replenishment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/sage-erp/pharmacy/internal/catalog"
	"github.com/sage-erp/pharmacy/internal/shared"
)

// ErrNoCandidates is returned when no requested item has an eligible offer.
var ErrNoCandidates = fmt.Errorf("replenishment: no eligible offers: %w", shared.ErrNotFound)

// CatalogPort exposes the catalog reads the matcher needs.
type CatalogPort interface {
	GetStockItems(ctx context.Context, ids []int64) ([]catalog.StockItem, error)
	LowStock(ctx context.Context) ([]catalog.StockItem, error)
	OffersMatching(ctx context.Context, stockItemID int64) ([]catalog.Offer, error)
}

// OrderLinePort reports which offers already sit on an order line.
type OrderLinePort interface {
	OrderedOfferIDs(ctx context.Context) (map[int64]struct{}, error)
}

// Candidate is one offer proposed for a stock item.
type Candidate struct {
	Offer             catalog.Offer `json:"offer"`
	ProviderName      string        `json:"providerName"`
	SuggestedQuantity int           `json:"suggestedQuantity"`
}

// Proposal maps stock item ids to their candidates.
type Proposal struct {
	Items      map[int64]catalog.StockItem `json:"-"`
	Candidates map[int64][]Candidate       `json:"candidates"`
}

// Row is a flattened proposal entry.
type Row struct {
	StockItem catalog.StockItem `json:"stockItem"`
	Candidate
}

// Flatten lists candidates ordered by stock item name, then offer id.
func (p Proposal) Flatten() []Row {
	ids := make([]int64, 0, len(p.Candidates))
	for id := range p.Candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := p.Items[ids[i]], p.Items[ids[j]]
		if a.Name == b.Name {
			return a.ID < b.ID
		}
		return a.Name < b.Name
	})
	var rows []Row
	for _, id := range ids {
		cands := append([]Candidate(nil), p.Candidates[id]...)
		sort.Slice(cands, func(i, j int) bool { return cands[i].Offer.ID < cands[j].Offer.ID })
		for _, c := range cands {
			rows = append(rows, Row{StockItem: p.Items[id], Candidate: c})
		}
	}
	return rows
}

// Matcher pairs low-stock items with offers nobody has ordered yet.
type Matcher struct {
	catalog CatalogPort
	lines   OrderLinePort
	logger  *slog.Logger
	group   singleflight.Group
}

// NewMatcher constructs a Matcher.
func NewMatcher(catalog CatalogPort, lines OrderLinePort, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{catalog: catalog, lines: lines, logger: logger}
}

// Propose finds eligible offers for each stock item. Offers already on any
// order line are skipped whatever the order status. Items without eligible
// offers, including unknown ids, are omitted; ErrNoCandidates is returned
// when nothing remains.
func (m *Matcher) Propose(ctx context.Context, stockItemIDs []int64) (Proposal, error) {
	if len(stockItemIDs) == 0 {
		return Proposal{}, fmt.Errorf("no stock item ids: %w", shared.ErrValidation)
	}
	items, err := m.catalog.GetStockItems(ctx, stockItemIDs)
	if err != nil {
		return Proposal{}, err
	}
	if len(items) < len(uniq(stockItemIDs)) {
		m.logger.Debug("some stock items not found", slog.Int("requested", len(stockItemIDs)), slog.Int("found", len(items)))
	}
	return m.propose(ctx, items)
}

// ProposeLowStock runs Propose over every item at or below its alert
// threshold. Concurrent callers share one computation, which is detached from
// any single caller's cancellation; each caller still stops waiting when its
// own ctx ends.
func (m *Matcher) ProposeLowStock(ctx context.Context) (Proposal, error) {
	work := context.WithoutCancel(ctx)
	ch := m.group.DoChan("low-stock", func() (any, error) {
		items, err := m.catalog.LowStock(work)
		if err != nil {
			return Proposal{}, err
		}
		if len(items) == 0 {
			return Proposal{}, ErrNoCandidates
		}
		return m.propose(work, items)
	})
	select {
	case <-ctx.Done():
		return Proposal{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("low stock proposal shared")
		}
		if res.Err != nil {
			return Proposal{}, res.Err
		}
		return res.Val.(Proposal), nil
	}
}

func (m *Matcher) propose(ctx context.Context, items []catalog.StockItem) (Proposal, error) {
	ordered, err := m.lines.OrderedOfferIDs(ctx)
	if err != nil {
		return Proposal{}, err
	}
	out := Proposal{Items: make(map[int64]catalog.StockItem), Candidates: make(map[int64][]Candidate)}
	for _, item := range items {
		offers, err := m.catalog.OffersMatching(ctx, item.ID)
		if err != nil {
			return Proposal{}, err
		}
		var cands []Candidate
		for _, offer := range offers {
			if _, taken := ordered[offer.ID]; taken {
				continue
			}
			cands = append(cands, Candidate{
				Offer:             offer,
				ProviderName:      offer.ProviderName,
				SuggestedQuantity: SuggestedQuantity(item, offer),
			})
		}
		if len(cands) == 0 {
			continue
		}
		out.Items[item.ID] = item
		out.Candidates[item.ID] = cands
	}
	if len(out.Candidates) == 0 {
		return Proposal{}, ErrNoCandidates
	}
	return out, nil
}

// SuggestedQuantity is the shortfall to Max capped by what the offer holds.
func SuggestedQuantity(item catalog.StockItem, offer catalog.Offer) int {
	want := item.Shortfall()
	if offer.Quantity < want {
		if offer.Quantity < 0 {
			return 0
		}
		return offer.Quantity
	}
	return want
}

func uniq(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
