package catalog

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// FilterKind names the single field a stock listing is narrowed on.
type FilterKind string

const (
	FilterNone         FilterKind = ""
	FilterDCI          FilterKind = "dci"
	FilterName         FilterKind = "name"
	FilterLocation     FilterKind = "location"
	FilterMin          FilterKind = "min"
	FilterMax          FilterKind = "max"
	FilterQuantity     FilterKind = "quantity"
	FilterSellingPrice FilterKind = "sellingPrice"
	FilterCostPrice    FilterKind = "costPrice"
	FilterAlert        FilterKind = "alert"
	FilterFamily       FilterKind = "family"
	FilterNomenclature FilterKind = "nomenclature"
	FilterReference    FilterKind = "reference"
	FilterReal         FilterKind = "real"
)

// FilterPrecedence lists filter kinds from strongest to weakest. When a query
// names several fields only the first one present in this order applies.
var FilterPrecedence = []FilterKind{
	FilterDCI,
	FilterName,
	FilterLocation,
	FilterMin,
	FilterMax,
	FilterQuantity,
	FilterSellingPrice,
	FilterCostPrice,
	FilterAlert,
	FilterFamily,
	FilterNomenclature,
	FilterReference,
	FilterReal,
}

// filterColumns maps each kind to its stock_items column.
var filterColumns = map[FilterKind]string{
	FilterDCI:          "dci",
	FilterName:         "name",
	FilterLocation:     "location",
	FilterMin:          "min_quantity",
	FilterMax:          "max_quantity",
	FilterQuantity:     "quantity",
	FilterSellingPrice: "selling_price",
	FilterCostPrice:    "cost_price",
	FilterAlert:        "alert",
	FilterFamily:       "family",
	FilterNomenclature: "nomenclature",
	FilterReference:    "reference",
	FilterReal:         "real_quantity",
}

// IsText reports whether the kind matches by case-insensitive substring.
func (k FilterKind) IsText() bool {
	switch k {
	case FilterDCI, FilterName, FilterLocation, FilterFamily, FilterNomenclature, FilterReference:
		return true
	}
	return false
}

// StockFilter narrows a stock listing on one field. The zero value matches
// every item.
type StockFilter struct {
	Kind   FilterKind
	Text   string
	Number decimal.Decimal
}

// TextFilter builds a substring filter.
func TextFilter(kind FilterKind, text string) StockFilter {
	return StockFilter{Kind: kind, Text: text}
}

// NumberFilter builds an equality filter.
func NumberFilter(kind FilterKind, n decimal.Decimal) StockFilter {
	return StockFilter{Kind: kind, Number: n}
}

// ParseStockFilter picks the highest precedence field present in values.
func ParseStockFilter(values url.Values) (StockFilter, error) {
	for _, kind := range FilterPrecedence {
		raw := strings.TrimSpace(values.Get(string(kind)))
		if raw == "" {
			continue
		}
		if kind.IsText() {
			return TextFilter(kind, raw), nil
		}
		n, err := decimal.NewFromString(raw)
		if err != nil {
			return StockFilter{}, fmt.Errorf("filter %s=%q: %w", kind, raw, ErrValidation)
		}
		return NumberFilter(kind, n), nil
	}
	return StockFilter{}, nil
}

// Match evaluates the filter against item.
func (f StockFilter) Match(item StockItem) bool {
	if f.Kind == FilterNone {
		return true
	}
	if f.Kind.IsText() {
		return strings.Contains(strings.ToLower(item.textField(f.Kind)), strings.ToLower(f.Text))
	}
	return item.numberField(f.Kind).Equal(f.Number)
}

// Where renders the filter as a SQL predicate using positional argument n.
func (f StockFilter) Where(n int) (string, []any) {
	column, ok := filterColumns[f.Kind]
	if !ok {
		return "TRUE", nil
	}
	if f.Kind.IsText() {
		return fmt.Sprintf("%s ILIKE $%d", column, n), []any{"%" + escapeLike(f.Text) + "%"}
	}
	return fmt.Sprintf("%s = $%d", column, n), []any{f.Number}
}

func (s StockItem) textField(kind FilterKind) string {
	switch kind {
	case FilterDCI:
		return s.DCI
	case FilterName:
		return s.Name
	case FilterLocation:
		return s.Location
	case FilterFamily:
		return s.Family
	case FilterNomenclature:
		return s.Nomenclature
	case FilterReference:
		return s.Reference
	}
	return ""
}

func (s StockItem) numberField(kind FilterKind) decimal.Decimal {
	switch kind {
	case FilterMin:
		return decimal.NewFromInt(int64(s.Min))
	case FilterMax:
		return decimal.NewFromInt(int64(s.Max))
	case FilterQuantity:
		return decimal.NewFromInt(int64(s.Quantity))
	case FilterSellingPrice:
		return s.SellingPrice
	case FilterCostPrice:
		return s.CostPrice
	case FilterAlert:
		return decimal.NewFromInt(int64(s.Alert))
	case FilterReal:
		return decimal.NewFromInt(int64(s.Real))
	}
	return decimal.Zero
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
