// Package state builds and publishes the daemon's status snapshot. A
// snapshot is derived data: it is rebuilt from settings, jobs and the clock
// after every tick and is never read back by the scheduler.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/flemzord/tickclaw/internal/config"
	"github.com/flemzord/tickclaw/internal/cron"
	"github.com/flemzord/tickclaw/internal/jobs"
	"github.com/flemzord/tickclaw/internal/tz"
	"github.com/flemzord/tickclaw/internal/workspace"
)

// Snapshot is the state document written to state.json.
type Snapshot struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"startedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Timezone   string    `json:"timezone"`
	Heartbeat  Heartbeat `json:"heartbeat"`
	Jobs       []Job     `json:"jobs"`
	Security   Security  `json:"security"`
	Telegram   bool      `json:"telegram"`
	Web        Web       `json:"web"`
	QueueDepth int       `json:"queueDepth"`
}

// Heartbeat is the heartbeat part of a snapshot. NextAt is null when the
// heartbeat is disabled.
type Heartbeat struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"intervalMinutes"`
	NextAt          *time.Time `json:"nextAt"`
	ExcludeWindows  []string   `json:"excludeWindows,omitempty"`
	// Degenerate is set when no allowed deadline was found.
	Degenerate bool `json:"degenerate,omitempty"`
}

// Job is one job's schedule. NextAt is null for inert jobs.
type Job struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Recurring bool       `json:"recurring"`
	NextAt    *time.Time `json:"nextAt"`
	// Degenerate is set when the schedule did not match within the scan bound.
	Degenerate bool `json:"degenerate,omitempty"`
}

// Security is the security part of a snapshot.
type Security struct {
	Level           string   `json:"level"`
	AllowedTools    []string `json:"allowedTools,omitempty"`
	DisallowedTools []string `json:"disallowedTools,omitempty"`
}

// Web describes the status gateway.
type Web struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// Input is everything Build needs.
type Input struct {
	PID       int
	StartedAt time.Time
	Now       time.Time

	Settings *config.Settings
	Runtime  config.Runtime
	Jobs     []jobs.Job

	// HeartbeatNext is the scheduled deadline; HeartbeatOK is false when
	// it is a degenerate fallback.
	HeartbeatNext time.Time
	HeartbeatOK   bool

	WebAddr    string
	QueueDepth int
}

// Build derives a snapshot from in.
func Build(in Input) Snapshot {
	s := in.Settings
	rt := in.Runtime

	snap := Snapshot{
		PID:       in.PID,
		StartedAt: in.StartedAt,
		UpdatedAt: in.Now,
		Timezone:  tz.Format(rt.OffsetMinutes),
		Heartbeat: Heartbeat{
			Enabled:         s.Heartbeat.Enabled,
			IntervalMinutes: int(rt.Interval / time.Minute),
		},
		Jobs: make([]Job, 0, len(in.Jobs)),
		Security: Security{
			Level:           string(rt.Level),
			AllowedTools:    s.Security.AllowedTools,
			DisallowedTools: s.Security.DisallowedTools,
		},
		Telegram:   s.Telegram.Enabled(),
		Web:        Web{Enabled: s.Web.Enabled, Addr: in.WebAddr},
		QueueDepth: in.QueueDepth,
	}

	for _, w := range rt.Windows {
		snap.Heartbeat.ExcludeWindows = append(snap.Heartbeat.ExcludeWindows, w.String())
	}
	if s.Heartbeat.Enabled && !in.HeartbeatNext.IsZero() {
		next := in.HeartbeatNext
		snap.Heartbeat.NextAt = &next
		snap.Heartbeat.Degenerate = !in.HeartbeatOK
	}

	for _, j := range in.Jobs {
		entry := Job{Name: j.Name, Schedule: j.Schedule, Recurring: j.Recurring}
		if !j.Inert() {
			next, ok := cron.NextMatch(j.Schedule, in.Now, rt.OffsetMinutes)
			entry.NextAt = &next
			entry.Degenerate = !ok
		}
		snap.Jobs = append(snap.Jobs, entry)
	}
	return snap
}

// Write stores snap at path atomically.
func Write(path string, snap Snapshot) error {
	if err := workspace.WriteJSONAtomic(path, snap); err != nil {
		return fmt.Errorf("state: writing %s: %w", path, err)
	}
	return nil
}

// Read loads the snapshot at path.
func Read(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("state: reading %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("state: parsing %s: %w", path, err)
	}
	return snap, nil
}
