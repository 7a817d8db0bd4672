package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bill is the printable summary of one provider order.
type Bill struct {
	OrderID      int64      `json:"orderId"`
	ProviderName string     `json:"providerName"`
	CreatedAt    time.Time  `json:"createdAt"`
	Lines        []BillLine `json:"lines"`
	Totals       Totals     `json:"totals"`
}

// BillLine is one printed row.
type BillLine struct {
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	PriceWithoutTax decimal.Decimal `json:"priceWithoutTax"`
	PriceWithTax    decimal.Decimal `json:"priceWithTax"`
}

// BuildBill assembles the bill of the provider's oldest ORDERED order.
func (s *Service) BuildBill(ctx context.Context, providerName string) (Bill, error) {
	if providerName == "" {
		return Bill{}, fmt.Errorf("provider name required: %w", ErrValidation)
	}
	var open []Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		open, err = tx.OpenOrders(ctx, providerName)
		return err
	})
	if err != nil {
		return Bill{}, err
	}
	if len(open) == 0 {
		return Bill{}, fmt.Errorf("no open order for %s: %w", providerName, ErrNotFound)
	}
	order, err := s.repo.GetOrder(ctx, open[0].ID)
	if err != nil {
		return Bill{}, err
	}
	if len(order.Lines) == 0 {
		return Bill{}, fmt.Errorf("order %d for %s has no lines: %w", order.ID, providerName, ErrValidation)
	}
	bill := Bill{
		OrderID:      order.ID,
		ProviderName: order.ProviderName,
		CreatedAt:    order.CreatedAt,
		Totals:       order.Totals(),
	}
	for _, l := range order.Lines {
		bill.Lines = append(bill.Lines, BillLine{Name: l.OfferName, Quantity: l.Quantity, PriceWithoutTax: l.PriceWithoutTax, PriceWithTax: l.PriceWithTax})
	}
	return bill, nil
}

// RenderBill builds and renders the provider's bill as PDF.
func (s *Service) RenderBill(ctx context.Context, providerName string) (Bill, []byte, error) {
	if s.renderer == nil {
		return Bill{}, nil, errors.New("orders: bill renderer not configured")
	}
	bill, err := s.BuildBill(ctx, providerName)
	if err != nil {
		return Bill{}, nil, err
	}
	pdf, err := s.renderer.RenderBill(ctx, bill)
	if err != nil {
		return Bill{}, nil, fmt.Errorf("render bill for %s: %w", providerName, err)
	}
	return bill, pdf, nil
}
