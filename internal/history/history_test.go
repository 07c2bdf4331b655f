package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/tickclaw/internal/agent"
	"github.com/flemzord/tickclaw/internal/runner"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		label := "heartbeat"
		if i%2 == 1 {
			label = "job:backup"
		}
		err := s.Record(ctx, Run{
			ID:         fmt.Sprintf("run-%d", i),
			Label:      label,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 2*time.Second),
			SessionID:  "s1",
			NewSession: i == 0,
			Answered:   "primary",
			ExitCode:   i,
		})
		if err != nil {
			t.Fatalf("Record(%d) error: %v", i, err)
		}
	}

	runs, err := s.Recent(ctx, "", 3)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "run-4" || runs[2].ID != "run-2" {
		t.Fatalf("Recent() = %+v", runs)
	}
	if runs[0].Duration() != 2*time.Second {
		t.Errorf("Duration() = %v", runs[0].Duration())
	}

	jobs, err := s.Recent(ctx, "job:backup", 10)
	if err != nil {
		t.Fatalf("Recent(label) error: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "run-3" || jobs[1].ID != "run-1" {
		t.Errorf("Recent(job:backup) = %+v", jobs)
	}

	all, _ := s.Recent(ctx, "", 10)
	last := all[len(all)-1]
	if last.ID != "run-0" || !last.NewSession || !last.StartedAt.Equal(base) {
		t.Errorf("oldest run = %+v", last)
	}
}

func TestStore_SubSecondOrdering(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.Record(ctx, Run{ID: "a", Label: "x", StartedAt: base, FinishedAt: base})
	_ = s.Record(ctx, Run{ID: "b", Label: "x", StartedAt: base.Add(500 * time.Millisecond), FinishedAt: base})

	runs, err := s.Recent(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "b" {
		t.Errorf("order = %+v", runs)
	}
}

func TestStore_ReopenKeepsRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := s.Record(context.Background(), Run{ID: "keep", Label: "heartbeat", StartedAt: now, FinishedAt: now}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	runs, err := s.Recent(context.Background(), "", 1)
	if err != nil || len(runs) != 1 || runs[0].ID != "keep" {
		t.Errorf("Recent() after reopen = %+v, %v", runs, err)
	}
	if n, _ := s.Recent(context.Background(), "", 0); n != nil {
		t.Error("Recent(0) should be nil")
	}
}

func TestRecorder_RunFinished(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	rec := NewRecorder(s, nil)
	ctx := context.Background()
	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	rec.RunFinished(ctx, runner.Outcome{
		RunID:      "run-1",
		Label:      "job:nightly",
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
		SessionID:  "sess",
		NewSession: true,
		Answered:   runner.AnsweredFallback,
		Model:      "haiku",
		Result:     agent.Result{ExitCode: 2},
		LogPath:    "/tmp/x.log",
	})
	// Dropped runs carry no id and are not recorded.
	rec.RunFinished(ctx, runner.Outcome{Label: "heartbeat"})

	runs, err := s.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %+v", runs)
	}
	got := runs[0]
	if got.ID != "run-1" || got.ExitCode != 2 || got.Answered != "fallback" || !got.NewSession || got.Duration() != 42*time.Second {
		t.Errorf("run = %+v", got)
	}
}
