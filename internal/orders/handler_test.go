package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sage-erp/pharmacy/internal/shared"
)

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type recordingQueue struct {
	providers []string
}

func (q *recordingQueue) EnqueueOrderBill(ctx context.Context, providerName, subject string) error {
	q.providers = append(q.providers, providerName)
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *memoryOrderRepo, *stubCatalog, *memoryIdempotency, *recordingQueue) {
	t.Helper()
	svc, repo, cat := newTestService(t)
	idem := &memoryIdempotency{keys: map[string]bool{}}
	queue := &recordingQueue{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, idem, queue)
	r := chi.NewRouter()
	r.Route("/orders", h.MountRoutes)
	return r, repo, cat, idem, queue
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerTransitionStatusCodes(t *testing.T) {
	router, repo, _, _, _ := newTestRouter(t)
	id := repo.seedOrder("Cerp", StatusReceived)
	path := "/orders/" + itoa(id) + "/status"

	rec := doJSON(t, router, http.MethodPatch, path, `{"status":"ARCHIVED"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, path, `{"status":"NOPE"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/orders/9999/status", `{"status":"PENDING"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, path, `{"status":"FINISHED"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Status Status   `json:"status"`
		Next   []Status `json:"next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, StatusFinished, view.Status)
	require.Equal(t, []Status{StatusReceived, StatusArchived}, view.Next)
}

func TestHandlerSubmitIdempotent(t *testing.T) {
	router, repo, cat, idem, _ := newTestRouter(t)
	cat.add(1, 10, "Cerp", "Doliprane", "2.00")
	headers := map[string]string{idempotencyHeader: "batch-1"}
	body := `{"requests":[{"offerId":1,"quantity":3}]}`

	rec := doJSON(t, router, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.orders, 1)

	rec = doJSON(t, router, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, ordersFor(repo, "Cerp")[0].Lines, 1)

	rec = doJSON(t, router, http.MethodPost, "/orders", `{"requests":[{"offerId":77,"quantity":3}]}`, map[string]string{idempotencyHeader: "batch-2"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, idem.keys["batch-2"])
}

func TestHandlerSubmitFailedWriteReleasesKey(t *testing.T) {
	router, repo, cat, idem, _ := newTestRouter(t)
	cat.add(1, 10, "Cerp", "Doliprane", "2.00")
	cat.add(2, 20, "Ocp", "Spasfon", "3.00")
	repo.failProvider = "Cerp"
	headers := map[string]string{idempotencyHeader: "batch-3"}
	body := `{"requests":[{"offerId":1,"quantity":3}]}`

	rec := doJSON(t, router, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.False(t, idem.keys["batch-3"])
	require.Empty(t, repo.orders)

	repo.failProvider = ""
	rec = doJSON(t, router, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ordersFor(repo, "Cerp"), 1)

	repo.failProvider = "Ocp"
	rec = doJSON(t, router, http.MethodPost, "/orders", `{"requests":[{"offerId":1,"quantity":1},{"offerId":2,"quantity":1}]}`, map[string]string{idempotencyHeader: "batch-4"})
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	require.True(t, idem.keys["batch-4"])
	var outcomes []SubmitOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcomes))
	require.Len(t, outcomes, 2)
	require.Empty(t, outcomes[0].Error)
	require.NotEmpty(t, outcomes[1].Error)
}

func TestHandlerMailBillQueues(t *testing.T) {
	router, _, cat, _, queue := newTestRouter(t)
	cat.add(1, 10, "Cerp", "Doliprane", "2.00")

	rec := doJSON(t, router, http.MethodPost, "/orders/bill/mail", `{"provider":"Cerp"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, queue.providers)

	rec = doJSON(t, router, http.MethodPost, "/orders", `{"requests":[{"offerId":1,"quantity":3}]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/orders/bill/mail", `{"provider":"Cerp"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"Cerp"}, queue.providers)
}

func TestHandlerCount(t *testing.T) {
	router, repo, _, _, _ := newTestRouter(t)
	repo.seedOrder("Cerp", StatusFinished)
	repo.seedOrder("Cerp", StatusOrdered)

	rec := doJSON(t, router, http.MethodGet, "/orders/count?status=FINISHED", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":1}`, rec.Body.String())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
