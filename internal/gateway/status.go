package gateway

import (
	"net/http"

	"github.com/flemzord/tickclaw/internal/history"
	"github.com/flemzord/tickclaw/internal/state"
)

// statusRuns is how many recent runs /status includes.
const statusRuns = 10

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64          `json:"uptimeSeconds"`
	State         state.Snapshot `json:"state"`
	RecentRuns    []history.Run  `json:"recentRuns"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := g.deps.Hub.Latest()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no state published yet")
			return
		}

		resp := StatusResponse{
			UptimeSeconds: int64(g.deps.Now().Sub(snap.StartedAt).Seconds()),
			State:         snap,
			RecentRuns:    []history.Run{},
		}
		if g.deps.Runs != nil {
			runs, err := g.deps.Runs.Recent(r.Context(), "", statusRuns)
			if err != nil {
				g.logger.Warn("listing recent runs failed", "error", err)
			} else if runs != nil {
				resp.RecentRuns = runs
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
