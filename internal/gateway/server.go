package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.metrics.middleware)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit))
		}
		r.Use(rateLimitMiddleware(g.limiter, g.audit))

		r.Get("/agents", g.handleListAgents())
		r.Route("/agents/{agent}", func(r chi.Router) {
			r.Post("/dispatch", g.handleDispatch())
			r.Get("/transcript", g.handleTranscript())
			r.Put("/mode", g.handleSwitchMode())
			r.Post("/recall", g.handleRecall())
			r.Get("/stream", g.handleStream())
		})
	})

	return r
}
