package orders

import "github.com/go-chi/chi/v5"

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.submit)
	r.Get("/count", h.count)
	r.Get("/bill", h.bill)
	r.Post("/bill/mail", h.mailBill)
	r.Get("/receipts/{filename}", h.downloadReceipt)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Delete("/", h.remove)
		r.Patch("/status", h.transition)
		r.Post("/lines", h.addLine)
		r.Patch("/lines", h.setQuantities)
		r.Delete("/lines/{name}", h.removeLine)
		r.Post("/receipts", h.uploadReceipt)
		r.Get("/receipts", h.receipts)
	})
}
