package archive

import "github.com/go-chi/chi/v5"

// MountRoutes registers archive endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Delete("/", h.remove)
		r.Put("/receipts", h.setReceipts)
	})
}
