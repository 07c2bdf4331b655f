package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/tickclaw/internal/runner"
	"github.com/flemzord/tickclaw/internal/state"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200

	// TriggerLabel prefixes the label of runs started through the API.
	TriggerLabel = "trigger"

	maxTriggerBody = 1 << 20
)

var triggerNameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

// handleListJobs returns the job schedules from the latest snapshot.
func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap, ok := g.deps.Hub.Latest()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no state published yet")
			return
		}
		jobs := snap.Jobs
		if jobs == nil {
			jobs = []state.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

// handleListRuns returns recorded runs, optionally filtered by ?label=.
func (g *Gateway) handleListRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Runs == nil {
			writeError(w, http.StatusServiceUnavailable, "run history unavailable")
			return
		}

		limit := defaultRunsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxRunsLimit)
		}

		runs, err := g.deps.Runs.Recent(r.Context(), r.URL.Query().Get("label"), limit)
		if err != nil {
			g.logger.Error("listing runs failed", "error", err)
			writeError(w, http.StatusInternalServerError, "listing runs failed")
			return
		}
		if runs == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// TriggerRequest is the body of POST /api/trigger.
type TriggerRequest struct {
	Prompt string `json:"prompt"`
	// Name is appended to the run label ("trigger:<name>").
	Name string `json:"name,omitempty"`
}

// TriggerResponse acknowledges a queued run.
type TriggerResponse struct {
	Label  string `json:"label"`
	Queued bool   `json:"queued"`
}

// handleTrigger queues an ad-hoc prompt behind any pending runs. The
// result lands in the audit log and run history.
func (g *Gateway) handleTrigger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Runner == nil {
			writeError(w, http.StatusServiceUnavailable, "runner unavailable")
			return
		}

		var req TriggerRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTriggerBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		label := TriggerLabel
		if req.Name != "" {
			if !triggerNameRe.MatchString(req.Name) {
				writeError(w, http.StatusBadRequest, "name must match "+triggerNameRe.String())
				return
			}
			label += ":" + req.Name
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		err := g.deps.Runner.Submit(ctx, label, req.Prompt, func(o runner.Outcome, err error) {
			if err != nil {
				g.logger.Warn("triggered run dropped", "label", label, "error", err)
				return
			}
			g.logger.Info("triggered run finished", "label", label, "run_id", o.RunID, "exit_code", o.Result.ExitCode)
		})
		if err != nil {
			if errors.Is(err, runner.ErrQueueClosed) {
				writeError(w, http.StatusServiceUnavailable, "daemon shutting down")
				return
			}
			writeError(w, http.StatusServiceUnavailable, "run queue full")
			return
		}

		g.logger.Info("run triggered", "label", label, "remote_addr", r.RemoteAddr)
		writeJSON(w, http.StatusAccepted, TriggerResponse{Label: label, Queued: true})
	}
}

// handleReload asks the scheduler for an immediate reload.
func (g *Gateway) handleReload() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.deps.Reload == nil {
			writeError(w, http.StatusServiceUnavailable, "reload unavailable")
			return
		}
		g.deps.Reload()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "reload requested"})
	}
}

// handleResetSession forgets the agent session once queued runs finish.
func (g *Gateway) handleResetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Runner == nil {
			writeError(w, http.StatusServiceUnavailable, "runner unavailable")
			return
		}
		if err := g.deps.Runner.Reset(r.Context()); err != nil {
			g.logger.Error("session reset failed", "error", err)
			writeError(w, http.StatusInternalServerError, "session reset failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
