package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockItemInput describes a stock item creation payload.
type StockItemInput struct {
	Name         string          `json:"name" validate:"required,max=200"`
	DCI          string          `json:"dci" validate:"max=200"`
	Location     string          `json:"location" validate:"max=100"`
	Family       string          `json:"family" validate:"max=100"`
	Nomenclature string          `json:"nomenclature" validate:"max=100"`
	Reference    string          `json:"reference" validate:"max=100"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	Quantity     int             `json:"quantity" validate:"gte=0"`
	Real         int             `json:"real" validate:"gte=0"`
	Min          int             `json:"min" validate:"gte=0"`
	Max          int             `json:"max" validate:"gte=0"`
	Alert        int             `json:"alert" validate:"gte=0"`
}

// StockItemPatch carries optional stock item updates.
type StockItemPatch struct {
	Location     *string          `json:"location" validate:"omitempty,max=100"`
	SellingPrice *decimal.Decimal `json:"sellingPrice"`
	CostPrice    *decimal.Decimal `json:"costPrice"`
	Quantity     *int             `json:"quantity" validate:"omitempty,gte=0"`
	Real         *int             `json:"real" validate:"omitempty,gte=0"`
	Min          *int             `json:"min" validate:"omitempty,gte=0"`
	Max          *int             `json:"max" validate:"omitempty,gte=0"`
	Alert        *int             `json:"alert" validate:"omitempty,gte=0"`
}

// ProviderInput describes provider creation.
type ProviderInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Email       string          `json:"email" validate:"omitempty,email"`
	MinPurchase decimal.Decimal `json:"minPurchase"`
	MinQuantity int             `json:"minQuantity" validate:"gte=0"`
}

// OfferInput describes one line of a provider catalog import.
type OfferInput struct {
	Name            string          `json:"name" validate:"required,max=200"`
	Quantity        int             `json:"quantity" validate:"gte=0"`
	PriceWithoutTax decimal.Decimal `json:"priceWithoutTax"`
	PriceWithTax    decimal.Decimal `json:"priceWithTax"`
	ExpiresAt       time.Time       `json:"expiresAt"`
}

// MatchUpdate sets the stock items an offer is equivalent to. An empty
// StockItemIDs clears the correspondence.
type MatchUpdate struct {
	OfferID      int64   `json:"offerId" validate:"required,gt=0"`
	StockItemIDs []int64 `json:"stockItemIds" validate:"omitempty,dive,gt=0"`
}

// StockPage is one page of a stock listing.
type StockPage struct {
	Items []StockItem `json:"items"`
	Page  int         `json:"page"`
	Pages int         `json:"pageCount"`
	Total int         `json:"total"`
}
