package history

import (
	"context"
	"log/slog"

	"github.com/flemzord/tickclaw/internal/runner"
)

// FromOutcome converts a runner outcome into a history row.
func FromOutcome(o runner.Outcome) Run {
	return Run{
		ID:         o.RunID,
		Label:      o.Label,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		SessionID:  o.SessionID,
		NewSession: o.NewSession,
		Answered:   o.Answered,
		Model:      o.Model,
		ExitCode:   o.Result.ExitCode,
		LogPath:    o.LogPath,
	}
}

// Recorder records every finished run. It implements runner.Observer.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{store: store, logger: logger.With("component", "history")}
}

// RunFinished implements runner.Observer. Failures are logged; history is
// an index and never blocks a run.
func (r *Recorder) RunFinished(ctx context.Context, o runner.Outcome) {
	if o.RunID == "" {
		return
	}
	if err := r.store.Record(ctx, FromOutcome(o)); err != nil {
		r.logger.Warn("recording run failed", "run_id", o.RunID, "error", err)
	}
}
