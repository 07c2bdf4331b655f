package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/flemzord/tickclaw/internal/config"
	"github.com/flemzord/tickclaw/internal/cron"
	"github.com/flemzord/tickclaw/internal/heartbeat"
	"github.com/flemzord/tickclaw/internal/history"
	"github.com/flemzord/tickclaw/internal/jobs"
	"github.com/flemzord/tickclaw/internal/pidfile"
	"github.com/flemzord/tickclaw/internal/reload"
	"github.com/flemzord/tickclaw/internal/session"
	"github.com/flemzord/tickclaw/internal/state"
	"github.com/flemzord/tickclaw/internal/workspace"
)

// StatusReport describes a project's daemon from the outside.
type StatusReport struct {
	ProjectDir string
	PID        int
	Running    bool
	// State is nil when no snapshot has been written.
	State *state.Snapshot
	Runs  []history.Run
}

// Status reads the PID lock, the state snapshot and the last n runs of the
// project. It never modifies the project.
func Status(ctx context.Context, projectDir string, n int) (StatusReport, error) {
	ws := workspace.New(projectDir)
	report := StatusReport{ProjectDir: projectDir}

	report.PID, report.Running = pidfile.Running(ws.PIDPath())

	if report.Running {
		snap, err := state.Read(ws.StatePath())
		switch {
		case err == nil:
			report.State = &snap
		case !errors.Is(err, os.ErrNotExist):
			return report, err
		}
	}

	if _, err := os.Stat(ws.HistoryPath()); err == nil && n > 0 {
		hist, err := history.Open(ws.HistoryPath())
		if err != nil {
			return report, err
		}
		defer func() { _ = hist.Close() }()
		if report.Runs, err = hist.Recent(ctx, "", n); err != nil {
			return report, err
		}
	}
	return report, nil
}

// JobInfo is one job as seen by `tickclaw jobs` and `tickclaw check`.
type JobInfo struct {
	jobs.Job
	// NextAt is zero for inert jobs.
	NextAt time.Time
	// Err is set for schedules that can never be parsed.
	Err error
	// Warning flags schedules that are valid but surprising.
	Warning string
}

// CheckReport is the result of validating a project's configuration.
type CheckReport struct {
	Settings *config.Settings
	Runtime  config.Runtime
	Jobs     []JobInfo
	Warnings []string
}

// Problems counts jobs with invalid schedules.
func (r CheckReport) Problems() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Err != nil {
			n++
		}
	}
	return n
}

// Check loads and validates settings and every job file. An invalid
// settings file is returned as an error; job problems are reported per job.
func Check(projectDir string, now time.Time) (CheckReport, error) {
	ws := workspace.New(projectDir)
	store := jobs.NewStore(ws.JobsDir(), nil)
	loader := reload.NewLoader(ws.SettingsPath(), store, nil)

	settings, err := loader.LoadSettings()
	if err != nil {
		return CheckReport{}, err
	}
	report := CheckReport{
		Settings: settings,
		Runtime:  settings.Resolve(now, nil),
	}

	list, err := store.Load()
	if err != nil {
		return report, err
	}
	report.Jobs = InspectJobs(list, report.Runtime, now)

	if _, err := exec.LookPath(settings.Agent.Binary); err != nil {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("agent binary %q not found in PATH", settings.Agent.Binary))
	}
	if settings.Heartbeat.Enabled {
		rt := report.Runtime
		if _, ok := heartbeat.NextAllowedAt(rt.Windows, rt.OffsetMinutes, rt.Interval, now); !ok {
			report.Warnings = append(report.Warnings, "every heartbeat deadline falls inside an exclusion window")
		}
	}
	return report, nil
}

// InspectJobs validates each job's schedule and computes its next run.
func InspectJobs(list []jobs.Job, rt config.Runtime, now time.Time) []JobInfo {
	out := make([]JobInfo, 0, len(list))
	for _, j := range list {
		info := JobInfo{Job: j}
		if j.Inert() {
			out = append(out, info)
			continue
		}
		if err := cron.Validate(j.Schedule); err != nil {
			if !errors.Is(err, cron.ErrDayFieldsAnded) {
				info.Err = err
				out = append(out, info)
				continue
			}
			info.Warning = "day-of-month and day-of-week both restricted; both must match"
		}
		next, ok := cron.NextMatch(j.Schedule, now, rt.OffsetMinutes)
		info.NextAt = next
		if !ok {
			info.Warning = "schedule never matches within the search horizon"
		}
		out = append(out, info)
	}
	return out
}

// ResetSession deletes the project's agent session so the next run starts
// a new conversation. It reports whether a daemon was running; a run in
// progress at that moment may still record the old session.
func ResetSession(projectDir string) (daemonRunning bool, err error) {
	ws := workspace.New(projectDir)
	_, daemonRunning = pidfile.Running(ws.PIDPath())
	return daemonRunning, session.NewStore(ws.SessionPath()).Reset()
}
