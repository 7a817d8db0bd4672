package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sage-erp/pharmacy/internal/platform/httpx"
	"github.com/sage-erp/pharmacy/internal/shared"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyModule = "orders.submit"
	maxReceiptBytes   = 10 << 20
)

// IdempotencyPort guards order submission against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// BillMailQueue schedules bill mails for asynchronous delivery.
type BillMailQueue interface {
	EnqueueOrderBill(ctx context.Context, providerName, subject string) error
}

// Handler manages order endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
	mail        BillMailQueue
}

// NewHandler builds Handler instance. idem and mail may be nil.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyPort, mail BillMailQueue) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idem, mail: mail}
}

type orderView struct {
	Order
	Totals Totals   `json:"totals"`
	Next   []Status `json:"next"`
}

func newOrderView(o Order) orderView {
	return orderView{Order: o, Totals: o.Totals(), Next: NextStatuses(o.Status)}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status, err := statusQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListOrders(r.Context(), status)
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	views := make([]orderView, 0, len(list))
	for _, o := range list {
		views = append(views, newOrderView(o))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	status, err := statusQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.CountOrders(r.Context(), status)
	if err != nil {
		h.fail(w, "count orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": total})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requests []OrderRequest `json:"requests"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	key := r.Header.Get(idempotencyHeader)
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.fail(w, "idempotency check", err)
			return
		}
	}
	outcomes, err := h.service.SubmitOrderRequests(r.Context(), body.Requests)
	if err != nil {
		if committed(outcomes) == 0 {
			if key != "" && h.idempotency != nil {
				if delErr := h.idempotency.Delete(r.Context(), key); delErr != nil {
					h.logger.Warn("release idempotency key", slog.Any("error", delErr))
				}
			}
			h.fail(w, "submit orders", err)
			return
		}
		h.logger.Error("submit orders partially failed", slog.Any("error", err))
		httpx.JSON(w, http.StatusMultiStatus, outcomes)
		return
	}
	httpx.JSON(w, http.StatusCreated, outcomes)
}

// committed counts the provider groups that were written.
func committed(outcomes []SubmitOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Error == "" {
			n++
		}
	}
	return n
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newOrderView(order))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.fail(w, "delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	order, err := h.service.Transition(r.Context(), id, Status(body.Status))
	if err != nil {
		h.fail(w, "transition order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newOrderView(order))
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body struct {
		OfferID  int64 `json:"offerId"`
		Quantity int   `json:"quantity"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	line, err := h.service.AddLine(r.Context(), id, body.OfferID, body.Quantity)
	if err != nil {
		h.fail(w, "add line", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) setQuantities(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var updates []LineQuantity
	if err := httpx.DecodeJSON(r, &updates); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	if err := h.service.SetLineQuantities(r.Context(), id, updates); err != nil {
		h.fail(w, "set line quantities", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemoveLine(r.Context(), id, chi.URLParam(r, "name")); err != nil {
		h.fail(w, "remove line", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) uploadReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("receipt upload: %v: %w", err, ErrValidation))
		return
	}
	defer func() {
		_ = file.Close()
	}()
	receipt, err := h.service.AttachReceipt(r.Context(), id, header.Filename, file)
	if err != nil {
		h.fail(w, "attach receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) receipts(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListReceipts(r.Context(), id)
	if err != nil {
		h.fail(w, "list receipts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) downloadReceipt(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, err := h.service.OpenReceipt(r.Context(), name)
	if err != nil {
		h.fail(w, "open receipt", err)
		return
	}
	defer func() {
		_ = f.Close()
	}()
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("stream receipt", slog.String("filename", name), slog.Any("error", err))
	}
}

func (h *Handler) bill(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	_, pdf, err := h.service.RenderBill(r.Context(), provider)
	if err != nil {
		h.fail(w, "render bill", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="facture.pdf"`)
	_, _ = w.Write(pdf)
}

func (h *Handler) mailBill(w http.ResponseWriter, r *http.Request) {
	if h.mail == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Mail Unavailable", "mail queue not configured")
		return
	}
	var body struct {
		Provider string `json:"provider"`
		Subject  string `json:"subject"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	if _, err := h.service.BuildBill(r.Context(), body.Provider); err != nil {
		h.fail(w, "build bill", err)
		return
	}
	if err := h.mail.EnqueueOrderBill(r.Context(), body.Provider, body.Subject); err != nil {
		h.fail(w, "enqueue bill mail", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("order id %q: %w", raw, ErrValidation)
	}
	return id, nil
}

func statusQuery(r *http.Request) (*Status, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	s, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
