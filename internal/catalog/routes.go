package catalog

import "github.com/go-chi/chi/v5"

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.listStock)
	r.Get("/stock/low", h.lowStock)
	r.Get("/stock/names", h.stockNames)
	r.Get("/stock/count", h.countStock)
	r.Get("/stock/{id}", h.showStock)
	r.Post("/stock", h.createStock)
	r.Patch("/stock/{id}", h.updateStock)
	r.Delete("/stock", h.deleteStock)

	r.Get("/providers", h.listProviders)
	r.Post("/providers", h.createProvider)
	r.Get("/providers/{id}", h.showProvider)
	r.Put("/providers/{id}", h.updateProvider)
	r.Delete("/providers/{id}", h.deleteProvider)
	r.Put("/providers/{id}/offers", h.replaceOffers)
	r.Post("/offers/matches", h.updateMatches)
}
