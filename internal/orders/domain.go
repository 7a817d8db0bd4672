package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sage-erp/pharmacy/internal/shared"
)

// Status enumerates purchase order workflow states.
type Status string

const (
	StatusOrdered  Status = "ORDERED"
	StatusPending  Status = "PENDING"
	StatusReceived Status = "RECEIVED"
	StatusFinished Status = "FINISHED"
	StatusAvoir    Status = "AVOIR"
	StatusArchived Status = "ARCHIVED"
)

// AllStatuses lists every status in workflow order.
var AllStatuses = []Status{StatusOrdered, StatusPending, StatusReceived, StatusFinished, StatusAvoir, StatusArchived}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	for _, s := range AllStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q: %w", raw, ErrValidation)
}

// Editable reports whether lines may still change.
func (s Status) Editable() bool {
	return s == StatusOrdered || s == StatusPending
}

// Order is a purchase order destined for one provider.
type Order struct {
	ID           int64     `json:"id"`
	ProviderName string    `json:"providerName"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	Lines        []Line    `json:"lines"`
}

// Line pairs an offer with the quantity to order.
type Line struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"orderId"`
	OfferID         int64           `json:"offerId"`
	OfferName       string          `json:"offerName"`
	Quantity        int             `json:"quantity"`
	PriceWithoutTax decimal.Decimal `json:"priceWithoutTax"`
	PriceWithTax    decimal.Decimal `json:"priceWithTax"`
}

// Totals sums line prices.
type Totals struct {
	WithoutTax decimal.Decimal `json:"withoutTax"`
	WithTax    decimal.Decimal `json:"withTax"`
}

// Totals computes quantity times unit price over every line.
func (o Order) Totals() Totals {
	t := Totals{WithoutTax: decimal.Zero, WithTax: decimal.Zero}
	for _, l := range o.Lines {
		q := decimal.NewFromInt(int64(l.Quantity))
		t.WithoutTax = t.WithoutTax.Add(l.PriceWithoutTax.Mul(q))
		t.WithTax = t.WithTax.Add(l.PriceWithTax.Mul(q))
	}
	return t
}

// Receipt is an uploaded delivery note or invoice. It belongs to an order
// until the order is archived, then to the archive record.
type Receipt struct {
	ID              int64  `json:"id"`
	Filename        string `json:"filename"`
	OrderID         *int64 `json:"orderId,omitempty"`
	ArchivedOrderID *int64 `json:"archivedOrderId,omitempty"`
}

var (
	// ErrNotFound indicates a missing order or line.
	ErrNotFound = fmt.Errorf("orders: %w", shared.ErrNotFound)
	// ErrInvalidTransition indicates a status change or edit the workflow forbids.
	ErrInvalidTransition = fmt.Errorf("orders: %w", shared.ErrInvalidTransition)
	// ErrValidation indicates malformed order input.
	ErrValidation = fmt.Errorf("orders: %w", shared.ErrValidation)
)
