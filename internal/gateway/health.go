package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string        `json:"status"`
	Agents int           `json:"agents"`
	Uptime time.Duration `json:"uptime_ns"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if g.agents != nil {
			resp.Agents = g.agents.Len()
		}
		if !g.startedAt.IsZero() {
			resp.Uptime = time.Since(g.startedAt).Truncate(time.Second)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
