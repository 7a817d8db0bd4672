package replenishment

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sage-erp/pharmacy/internal/platform/httpx"
	"github.com/sage-erp/pharmacy/internal/shared"
)

// Handler serves replenishment proposals.
type Handler struct {
	logger  *slog.Logger
	matcher *Matcher
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, matcher *Matcher) *Handler {
	return &Handler{logger: logger, matcher: matcher}
}

type proposalRequest struct {
	StockItemIDs []int64 `json:"stockItemIds"`
}

type proposalResponse struct {
	Candidates map[int64][]Candidate `json:"candidates"`
	Rows       []Row                 `json:"rows"`
}

func (h *Handler) propose(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, shared.ErrValidation))
		return
	}
	proposal, err := h.matcher.Propose(r.Context(), req.StockItemIDs)
	if err != nil {
		h.fail(w, "propose", err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposalResponse{Candidates: proposal.Candidates, Rows: proposal.Flatten()})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.matcher.ProposeLowStock(r.Context())
	if err != nil {
		h.fail(w, "propose low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposalResponse{Candidates: proposal.Candidates, Rows: proposal.Flatten()})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error("replenishment "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
