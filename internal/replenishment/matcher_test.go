package replenishment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sage-erp/pharmacy/internal/catalog"
	"github.com/sage-erp/pharmacy/internal/shared"
)

type fakeCatalog struct {
	items    map[int64]catalog.StockItem
	offers   map[int64][]catalog.Offer
	lowCalls atomic.Int32
	// release, when set, holds LowStock until closed. started and finished
	// report each held call's progress.
	started  chan struct{}
	release  chan struct{}
	finished chan error
}

func (f *fakeCatalog) GetStockItems(ctx context.Context, ids []int64) ([]catalog.StockItem, error) {
	var out []catalog.StockItem
	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeCatalog) LowStock(ctx context.Context) ([]catalog.StockItem, error) {
	f.lowCalls.Add(1)
	if f.release != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
			f.finished <- nil
		case <-ctx.Done():
			f.finished <- ctx.Err()
			return nil, ctx.Err()
		}
	}
	var out []catalog.StockItem
	for _, item := range f.items {
		if item.IsLow() {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeCatalog) OffersMatching(ctx context.Context, stockItemID int64) ([]catalog.Offer, error) {
	return f.offers[stockItemID], nil
}

type fakeLines map[int64]struct{}

func (f fakeLines) OrderedOfferIDs(ctx context.Context) (map[int64]struct{}, error) {
	return f, nil
}

func newFixture() (*fakeCatalog, fakeLines) {
	cat := &fakeCatalog{
		items: map[int64]catalog.StockItem{
			1: {ID: 1, Name: "Doliprane", Quantity: 2, Alert: 5, Max: 20},
			2: {ID: 2, Name: "Amoxicilline", Quantity: 1, Alert: 3, Max: 10},
			3: {ID: 3, Name: "Spasfon", Quantity: 30, Alert: 5, Max: 20},
		},
		offers: map[int64][]catalog.Offer{
			1: {
				{ID: 10, ProviderName: "Cerp", Name: "DOLIPRANE 1000", Quantity: 50},
				{ID: 11, ProviderName: "Ocp", Name: "DOLIPRANE 1G", Quantity: 7},
			},
			2: {
				{ID: 20, ProviderName: "Cerp", Name: "AMOXI 500", Quantity: 100},
			},
			3: {
				{ID: 30, ProviderName: "Ocp", Name: "SPASFON", Quantity: 100},
			},
		},
	}
	return cat, fakeLines{}
}

func newTestMatcher(cat *fakeCatalog, lines fakeLines) *Matcher {
	return NewMatcher(cat, lines, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestProposeSuggestsShortfall(t *testing.T) {
	cat, lines := newFixture()
	m := newTestMatcher(cat, lines)

	proposal, err := m.Propose(context.Background(), []int64{1})
	require.NoError(t, err)
	cands := proposal.Candidates[1]
	require.Len(t, cands, 2)
	require.Equal(t, int64(10), cands[0].Offer.ID)
	require.Equal(t, 18, cands[0].SuggestedQuantity)
	require.Equal(t, "Cerp", cands[0].ProviderName)
	require.Equal(t, 7, cands[1].SuggestedQuantity)
}

func TestProposeSkipsOrderedOffers(t *testing.T) {
	cat, lines := newFixture()
	lines[10] = struct{}{}
	m := newTestMatcher(cat, lines)

	proposal, err := m.Propose(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, proposal.Candidates[1], 1)
	require.Equal(t, int64(11), proposal.Candidates[1][0].Offer.ID)
	require.Len(t, proposal.Candidates[2], 1)
}

func TestProposeOmitsItemsWithoutCandidates(t *testing.T) {
	cat, lines := newFixture()
	lines[20] = struct{}{}
	m := newTestMatcher(cat, lines)

	proposal, err := m.Propose(context.Background(), []int64{1, 2, 404})
	require.NoError(t, err)
	require.Contains(t, proposal.Candidates, int64(1))
	require.NotContains(t, proposal.Candidates, int64(2))
	require.NotContains(t, proposal.Candidates, int64(404))
}

func TestProposeNothingEligible(t *testing.T) {
	cat, lines := newFixture()
	lines[20] = struct{}{}
	m := newTestMatcher(cat, lines)

	_, err := m.Propose(context.Background(), []int64{2, 404})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = m.Propose(context.Background(), nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSuggestedQuantityClamps(t *testing.T) {
	item := catalog.StockItem{Quantity: 25, Max: 20}
	require.Equal(t, 0, SuggestedQuantity(item, catalog.Offer{Quantity: 10}))

	item = catalog.StockItem{Quantity: 0, Max: 20}
	require.Equal(t, 20, SuggestedQuantity(item, catalog.Offer{Quantity: 40}))
	require.Equal(t, 4, SuggestedQuantity(item, catalog.Offer{Quantity: 4}))
}

func TestProposeLowStockUsesAlertThreshold(t *testing.T) {
	cat, lines := newFixture()
	m := newTestMatcher(cat, lines)

	proposal, err := m.ProposeLowStock(context.Background())
	require.NoError(t, err)
	require.Contains(t, proposal.Candidates, int64(1))
	require.Contains(t, proposal.Candidates, int64(2))
	require.NotContains(t, proposal.Candidates, int64(3))
	require.Equal(t, int32(1), cat.lowCalls.Load())

	rows := proposal.Flatten()
	require.Len(t, rows, 3)
	require.Equal(t, "Amoxicilline", rows[0].StockItem.Name)
	require.Equal(t, "Doliprane", rows[1].StockItem.Name)
	require.Equal(t, int64(10), rows[1].Offer.ID)
	require.Equal(t, int64(11), rows[2].Offer.ID)
}

func TestHandlerProposals(t *testing.T) {
	cat, lines := newFixture()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newTestMatcher(cat, lines))
	r := chi.NewRouter()
	r.Route("/replenishment", h.MountRoutes)

	req := httptest.NewRequest(http.MethodPost, "/replenishment/proposals", strings.NewReader(`{"stockItemIds":[2]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"suggestedQuantity":9`)

	req = httptest.NewRequest(http.MethodPost, "/replenishment/proposals", strings.NewReader(`{"stockItemIds":[404]}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/replenishment/proposals", strings.NewReader(`{`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProposeLowStockSurvivesFirstCallerCancel(t *testing.T) {
	cat, lines := newFixture()
	cat.started = make(chan struct{}, 2)
	cat.release = make(chan struct{})
	cat.finished = make(chan error, 2)
	m := newTestMatcher(cat, lines)

	ctx, cancel := context.WithCancel(context.Background())
	callErr := make(chan error, 1)
	go func() {
		_, err := m.ProposeLowStock(ctx)
		callErr <- err
	}()
	<-cat.started

	cancel()
	require.ErrorIs(t, <-callErr, context.Canceled)

	close(cat.release)
	require.NoError(t, <-cat.finished)

	proposal, err := m.ProposeLowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, proposal.Candidates, 2)
}
