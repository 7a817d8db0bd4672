package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sage-erp/pharmacy/internal/archive"
	"github.com/sage-erp/pharmacy/internal/catalog"
	"github.com/sage-erp/pharmacy/internal/observability"
	"github.com/sage-erp/pharmacy/internal/orders"
	"github.com/sage-erp/pharmacy/internal/replenishment"
	"github.com/sage-erp/pharmacy/jobs"
	"github.com/sage-erp/pharmacy/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	CatalogHandler       *catalog.Handler
	OrdersHandler        *orders.Handler
	ReplenishmentHandler *replenishment.Handler
	ArchiveHandler       *archive.Handler
	ReportHandler        *report.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with the API mounted under /api.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.OrdersHandler != nil {
			r.Route("/orders", params.OrdersHandler.MountRoutes)
		}
		if params.ReplenishmentHandler != nil {
			r.Route("/replenishment", params.ReplenishmentHandler.MountRoutes)
		}
		if params.ArchiveHandler != nil {
			r.Route("/archives", params.ArchiveHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/reports", params.ReportHandler.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}
