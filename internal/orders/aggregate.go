package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sage-erp/pharmacy/internal/catalog"
)

// OfferRef names an offer by its label within one provider's catalog.
type OfferRef struct {
	Name       string `json:"name" validate:"required"`
	ProviderID int64  `json:"providerId" validate:"required,gt=0"`
}

// OrderRequest asks for quantity units of one offer, referenced either by id
// or by (name, provider).
type OrderRequest struct {
	OfferID  int64     `json:"offerId" validate:"gte=0"`
	Offer    *OfferRef `json:"offer" validate:"omitempty"`
	Quantity int       `json:"quantity" validate:"gt=0"`
}

// SubmitOutcome reports what happened to one provider group.
type SubmitOutcome struct {
	ProviderName string `json:"providerName"`
	OrderID      int64  `json:"orderId,omitempty"`
	Created      bool   `json:"created"`
	Lines        int    `json:"lines"`
	Error        string `json:"error,omitempty"`
}

type providerGroup struct {
	provider string
	lines    []Line
}

// SubmitOrderRequests groups requests by provider and files them. A provider
// without an ORDERED order gets a new one; otherwise lines join its oldest
// ORDERED order. Offers are resolved before any write, so an unknown offer
// aborts the whole batch. Each group is then written in its own transaction:
// one group failing leaves the others committed, and the failures are joined
// into the returned error.
func (s *Service) SubmitOrderRequests(ctx context.Context, requests []OrderRequest) ([]SubmitOutcome, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("no order requests: %w", ErrValidation)
	}
	for i, req := range requests {
		if err := s.check(req); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		if (req.OfferID > 0) == (req.Offer != nil) {
			return nil, fmt.Errorf("request %d needs exactly one of offerId or offer: %w", i, ErrValidation)
		}
	}

	groups, err := s.groupByProvider(ctx, requests)
	if err != nil {
		return nil, err
	}

	outcomes := make([]SubmitOutcome, 0, len(groups))
	var errs []error
	for _, g := range groups {
		outcome, err := s.fileGroup(ctx, g)
		if err != nil {
			s.logger.Error("file order group", slog.String("provider", g.provider), slog.Any("error", err))
			outcome.Error = err.Error()
			errs = append(errs, fmt.Errorf("provider %s: %w", g.provider, err))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, errors.Join(errs...)
}

func (s *Service) groupByProvider(ctx context.Context, requests []OrderRequest) ([]*providerGroup, error) {
	index := make(map[string]*providerGroup)
	var groups []*providerGroup
	for i, req := range requests {
		offer, err := s.resolve(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		g, ok := index[offer.ProviderName]
		if !ok {
			g = &providerGroup{provider: offer.ProviderName}
			index[offer.ProviderName] = g
			groups = append(groups, g)
		}
		g.lines = append(g.lines, Line{
			OfferID:         offer.ID,
			OfferName:       offer.Name,
			Quantity:        req.Quantity,
			PriceWithoutTax: offer.PriceWithoutTax,
			PriceWithTax:    offer.PriceWithTax,
		})
	}
	return groups, nil
}

func (s *Service) resolve(ctx context.Context, req OrderRequest) (catalog.Offer, error) {
	if req.Offer != nil {
		return s.catalog.ResolveOffer(ctx, req.Offer.Name, req.Offer.ProviderID)
	}
	return s.catalog.OwnerOf(ctx, req.OfferID)
}

func (s *Service) fileGroup(ctx context.Context, g *providerGroup) (SubmitOutcome, error) {
	outcome := SubmitOutcome{ProviderName: g.provider}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		open, err := tx.OpenOrders(ctx, g.provider)
		if err != nil {
			return err
		}
		var target Order
		if len(open) == 0 {
			target, err = tx.CreateOrder(ctx, g.provider)
			if err != nil {
				return err
			}
			outcome.Created = true
		} else {
			target = open[0]
			if len(open) > 1 {
				s.logger.Warn("several open orders for provider, merging into oldest",
					slog.String("provider", g.provider),
					slog.Int64("order_id", target.ID),
					slog.Int("open_orders", len(open)),
				)
			}
		}
		for _, line := range g.lines {
			line.OrderID = target.ID
			if _, err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		outcome.OrderID = target.ID
		outcome.Lines = len(g.lines)
		return nil
	})
	if err != nil {
		return SubmitOutcome{ProviderName: g.provider}, err
	}
	action := "ORDER_APPEND"
	if outcome.Created {
		action = "ORDER_CREATE"
	}
	s.recordAudit(ctx, action, outcome.OrderID, map[string]any{"provider": g.provider, "lines": outcome.Lines})
	return outcome, nil
}
