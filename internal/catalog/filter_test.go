package catalog

import (
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseStockFilterPrecedence(t *testing.T) {
	cases := []struct {
		name  string
		query url.Values
		want  StockFilter
	}{
		{"empty", url.Values{}, StockFilter{}},
		{"dci beats name", url.Values{"name": {"doli"}, "dci": {"paracetamol"}}, TextFilter(FilterDCI, "paracetamol")},
		{"name beats location", url.Values{"location": {"A1"}, "name": {"doli"}}, TextFilter(FilterName, "doli")},
		{"location beats min", url.Values{"min": {"3"}, "location": {"A1"}}, TextFilter(FilterLocation, "A1")},
		{"min beats max", url.Values{"max": {"10"}, "min": {"3"}}, NumberFilter(FilterMin, decimal.NewFromInt(3))},
		{"quantity beats selling price", url.Values{"sellingPrice": {"2.5"}, "quantity": {"4"}}, NumberFilter(FilterQuantity, decimal.NewFromInt(4))},
		{"cost price beats alert", url.Values{"alert": {"1"}, "costPrice": {"1.10"}}, NumberFilter(FilterCostPrice, decimal.RequireFromString("1.10"))},
		{"family beats reference", url.Values{"reference": {"R"}, "family": {"antalgique"}}, TextFilter(FilterFamily, "antalgique")},
		{"real is last", url.Values{"real": {"7"}, "foo": {"bar"}}, NumberFilter(FilterReal, decimal.NewFromInt(7))},
		{"blank values skipped", url.Values{"dci": {"  "}, "nomenclature": {"N2"}}, TextFilter(FilterNomenclature, "N2")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStockFilter(tc.query)
			require.NoError(t, err)
			require.Equal(t, tc.want.Kind, got.Kind)
			require.Equal(t, tc.want.Text, got.Text)
			require.True(t, tc.want.Number.Equal(got.Number))
		})
	}
}

func TestFilterPrecedenceCoversEveryKind(t *testing.T) {
	require.Len(t, FilterPrecedence, len(filterColumns))
	for _, kind := range FilterPrecedence {
		_, ok := filterColumns[kind]
		require.True(t, ok, kind)
	}
}

func TestParseStockFilterRejectsBadNumber(t *testing.T) {
	_, err := ParseStockFilter(url.Values{"quantity": {"lots"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestStockFilterMatch(t *testing.T) {
	item := StockItem{Name: "Doliprane 500", DCI: "Paracetamol", Quantity: 4, SellingPrice: decimal.RequireFromString("2.50")}

	require.True(t, StockFilter{}.Match(item))
	require.True(t, TextFilter(FilterName, "dolip").Match(item))
	require.True(t, TextFilter(FilterDCI, "PARA").Match(item))
	require.False(t, TextFilter(FilterName, "efferalgan").Match(item))
	require.True(t, NumberFilter(FilterQuantity, decimal.NewFromInt(4)).Match(item))
	require.False(t, NumberFilter(FilterQuantity, decimal.NewFromInt(5)).Match(item))
	require.True(t, NumberFilter(FilterSellingPrice, decimal.RequireFromString("2.5")).Match(item))
}

func TestStockFilterWhere(t *testing.T) {
	clause, args := StockFilter{}.Where(1)
	require.Equal(t, "TRUE", clause)
	require.Empty(t, args)

	clause, args = TextFilter(FilterName, "50%").Where(1)
	require.Equal(t, "name ILIKE $1", clause)
	require.Equal(t, []any{`%50\%%`}, args)

	clause, args = NumberFilter(FilterMax, decimal.NewFromInt(20)).Where(3)
	require.Equal(t, "max_quantity = $3", clause)
	require.Len(t, args, 1)
}
