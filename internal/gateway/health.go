package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// staleAfter is how old the latest snapshot may get before /health reports
// the scheduler as stuck. The loop publishes at least once a minute.
const staleAfter = 3 * time.Minute

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string     `json:"status"` // "ok", "starting" or "stale"
	PID       int        `json:"pid,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 while snapshots are fresh, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "starting"}

		if snap, ok := g.deps.Hub.Latest(); ok {
			updated := snap.UpdatedAt
			resp.PID = snap.PID
			resp.UpdatedAt = &updated
			resp.Status = "ok"
			if g.deps.Now().Sub(updated) > staleAfter {
				resp.Status = "stale"
			}
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
