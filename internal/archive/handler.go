package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sage-erp/pharmacy/internal/platform/httpx"
	"github.com/sage-erp/pharmacy/internal/shared"
)

// Handler serves archived orders.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	archives, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list archives", err)
		return
	}
	if archives == nil {
		archives = []ArchivedOrder{}
	}
	httpx.JSON(w, http.StatusOK, archives)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	archive, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get archive", err)
		return
	}
	httpx.JSON(w, http.StatusOK, archive)
}

func (h *Handler) setReceipts(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body struct {
		ReceiptIDs []int64 `json:"receiptIds"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, ErrValidation))
		return
	}
	archive, err := h.service.SetReceipts(r.Context(), id, body.ReceiptIDs)
	if err != nil {
		h.fail(w, "set archive receipts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, archive)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete archive", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
		return 0, fmt.Errorf("archive id %q: %w", raw, ErrValidation)
	}
	return id, nil
}
