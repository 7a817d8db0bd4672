package replenishment

import "github.com/go-chi/chi/v5"

// MountRoutes registers replenishment endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/proposals", h.propose)
	r.Get("/low-stock", h.lowStock)
}
