package metricshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	exportLimiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/dashboard", h.handleDashboard)
	r.Get("/dashboard/growth", h.handleGrowth)
	r.Get("/dashboard/distributions/status", h.handleStatusDistribution)
	r.Get("/dashboard/distributions/routes", h.handleRouteDistribution)
	r.Get("/dashboard/distributions/revenue", h.handleRevenueDistribution)
	r.Get("/dashboard/revenue-series", h.handleRevenueSeries)
	r.Post("/dashboard/cache/bump", h.handleCacheBump)
	r.Group(func(gr chi.Router) {
		gr.Use(exportLimiter)
		gr.Get("/dashboard/export", h.handleExport)
		gr.Get("/dashboard/export.csv", h.handleSnapshotCSV)
	})
}
