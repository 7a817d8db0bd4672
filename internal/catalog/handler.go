package catalog

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sage-erp/pharmacy/internal/platform/httpx"
)

// Handler serves catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseStockFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("page %q: %w", raw, ErrValidation))
			return
		}
	}
	result, err := h.service.ListStock(r.Context(), filter, page)
	if err != nil {
		h.fail(w, "list stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context())
	if err != nil {
		h.fail(w, "low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) stockNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.StockNames(r.Context())
	if err != nil {
		h.fail(w, "stock names", err)
		return
	}
	httpx.JSON(w, http.StatusOK, names)
}

func (h *Handler) countStock(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseStockFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.CountStock(r.Context(), filter)
	if err != nil {
		h.fail(w, "count stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) showStock(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetStockItem(r.Context(), id)
	if err != nil {
		h.fail(w, "get stock item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) createStock(w http.ResponseWriter, r *http.Request) {
	var input StockItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	item, err := h.service.CreateStockItem(r.Context(), input)
	if err != nil {
		h.fail(w, "create stock item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var patch StockItemPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	item, err := h.service.UpdateStockItem(r.Context(), id, patch)
	if err != nil {
		h.fail(w, "update stock item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	if err := h.service.DeleteStockItems(r.Context(), body.IDs); err != nil {
		h.fail(w, "delete stock items", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.ListProviders(r.Context())
	if err != nil {
		h.fail(w, "list providers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, providers)
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var input ProviderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	p, err := h.service.CreateProvider(r.Context(), input)
	if err != nil {
		h.fail(w, "create provider", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) showProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.GetProvider(r.Context(), id)
	if err != nil {
		h.fail(w, "get provider", err)
		return
	}
	offers, err := h.service.ListOffers(r.Context(), id)
	if err != nil {
		h.fail(w, "list offers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"provider": p, "offers": offers})
}

func (h *Handler) updateProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input ProviderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	p, err := h.service.UpdateProvider(r.Context(), id, input)
	if err != nil {
		h.fail(w, "update provider", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteProvider(r.Context(), id); err != nil {
		h.fail(w, "delete provider", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) replaceOffers(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var inputs []OfferInput
	if err := httpx.DecodeJSON(r, &inputs); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	offers, err := h.service.ReplaceOffers(r.Context(), id, inputs)
	if err != nil {
		h.fail(w, "replace offers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, offers)
}

func (h *Handler) updateMatches(w http.ResponseWriter, r *http.Request) {
	var updates []MatchUpdate
	if err := httpx.DecodeJSON(r, &updates); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %v: %w", err, ErrValidation))
		return
	}
	if err := h.service.UpdateMatches(r.Context(), updates); err != nil {
		h.fail(w, "update matches", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s %q: %w", param, raw, ErrValidation)
	}
	return id, nil
}
