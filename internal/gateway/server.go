package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", g.deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if g.config.Token != "" {
			r.Use(authMiddleware(g.config.Token, g.logger))
		}
		r.Get("/status", g.handleStatus())
		r.Get("/ws/state", g.handleStateStream())
		r.Route("/api", func(r chi.Router) {
			r.Get("/jobs", g.handleListJobs())
			r.Get("/runs", g.handleListRuns())
			r.Post("/trigger", g.handleTrigger())
			r.Post("/reload", g.handleReload())
			r.Delete("/session", g.handleResetSession())
		})
	})

	return r
}
