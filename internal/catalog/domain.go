package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sage-erp/pharmacy/internal/shared"
)

// StockItem is a medicine tracked in the pharmacy's own inventory.
type StockItem struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	DCI          string          `json:"dci"`
	Location     string          `json:"location"`
	Family       string          `json:"family"`
	Nomenclature string          `json:"nomenclature"`
	Reference    string          `json:"reference"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	Quantity     int             `json:"quantity"`
	Real         int             `json:"real"`
	Min          int             `json:"min"`
	Max          int             `json:"max"`
	Alert        int             `json:"alert"`
}

// IsLow reports whether the item sits at or below its alert threshold.
func (s StockItem) IsLow() bool {
	return s.Quantity <= s.Alert
}

// Shortfall returns the quantity missing to reach Max, never negative.
func (s StockItem) Shortfall() int {
	if d := s.Max - s.Quantity; d > 0 {
		return d
	}
	return 0
}

// Provider supplies offers.
type Provider struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	MinPurchase decimal.Decimal `json:"minPurchase"`
	MinQuantity int             `json:"minQuantity"`
}

// Offer is a priced, quantity-limited item a provider can deliver.
type Offer struct {
	ID              int64           `json:"id"`
	ProviderID      int64           `json:"providerId"`
	ProviderName    string          `json:"providerName"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	PriceWithoutTax decimal.Decimal `json:"priceWithoutTax"`
	PriceWithTax    decimal.Decimal `json:"priceWithTax"`
	ExpiresAt       time.Time       `json:"expiresAt"`
	MatchingItemIDs []int64         `json:"matchingItemIds"`
}

var (
	// ErrNotFound indicates a missing stock item, provider or offer.
	ErrNotFound = fmt.Errorf("catalog: %w", shared.ErrNotFound)
	// ErrConflict indicates a catalog change blocked by existing orders.
	ErrConflict = fmt.Errorf("catalog: %w", shared.ErrConflict)
	// ErrValidation indicates invalid catalog input.
	ErrValidation = fmt.Errorf("catalog: %w", shared.ErrValidation)
)
