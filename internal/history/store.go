package history

import (
	"context"
	"fmt"
	"time"
)

// Run is one indexed invocation.
type Run struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	SessionID  string    `json:"sessionId,omitempty"`
	NewSession bool      `json:"newSession"`
	Answered   string    `json:"answered"`
	Model      string    `json:"model,omitempty"`
	ExitCode   int       `json:"exitCode"`
	LogPath    string    `json:"logPath,omitempty"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// timeLayout has fixed-width fractions so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record inserts run. Recording the same id twice replaces the row.
func (s *Store) Record(ctx context.Context, run Run) error {
	newSession := 0
	if run.NewSession {
		newSession = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, label, started_at, finished_at, session_id, new_session, answered, model, exit_code, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.SessionID, newSession, run.Answered, run.Model, run.ExitCode, run.LogPath,
	)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first. An empty label matches every
// run.
func (s *Store) Recent(ctx context.Context, label string, n int) ([]Run, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, started_at, finished_at, session_id, new_session, answered, model, exit_code, log_path
		FROM runs
		WHERE ? = '' OR label = ?
		ORDER BY started_at DESC
		LIMIT ?`,
		label, label, n,
	)
	if err != nil {
		return nil, fmt.Errorf("history: recent runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			newSession        int
		)
		if err := rows.Scan(&r.ID, &r.Label, &started, &finished, &r.SessionID, &newSession,
			&r.Answered, &r.Model, &r.ExitCode, &r.LogPath); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("history: run %s started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("history: run %s finished_at: %w", r.ID, err)
		}
		r.NewSession = newSession != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return runs, nil
}
