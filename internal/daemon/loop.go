package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/flemzord/tickclaw/internal/cron"
	"github.com/flemzord/tickclaw/internal/heartbeat"
	"github.com/flemzord/tickclaw/internal/notify"
	"github.com/flemzord/tickclaw/internal/reload"
	"github.com/flemzord/tickclaw/internal/runner"
	"github.com/flemzord/tickclaw/internal/state"
	"github.com/flemzord/tickclaw/internal/workspace"
)

// HeartbeatLabel labels heartbeat runs in logs, audit files and history.
const HeartbeatLabel = "heartbeat"

// JobLabelPrefix prefixes the job name in run labels.
const JobLabelPrefix = "job:"

// submitTimeout bounds how long the loop waits for room in the run queue.
const submitTimeout = time.Second

// loop is the Running phase. Every event is handled on this goroutine, so
// loop-owned state needs no locking.
func (d *Daemon) loop(ctx context.Context) {
	defer close(d.loopDone)

	hbTimer := time.NewTimer(time.Hour)
	hbTimer.Stop()
	defer hbTimer.Stop()
	d.resetHeartbeatTimer(hbTimer)

	cronTimer := time.NewTimer(untilNextMinute(d.cfg.Now()))
	defer cronTimer.Stop()

	reloadTicker := time.NewTicker(d.cfg.ReloadPeriod)
	defer reloadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-hbTimer.C:
			d.fireHeartbeat(ctx, d.cfg.Now())
			d.resetHeartbeatTimer(hbTimer)

		case <-cronTimer.C:
			now := d.cfg.Now()
			d.tickCron(ctx, now)
			cronTimer.Reset(untilNextMinute(now))

		case <-reloadTicker.C:
			if d.reload(d.cfg.Now()) {
				d.resetHeartbeatTimer(hbTimer)
			}

		case <-d.cfg.Reload:
			d.logger.Info("reload requested")
			if d.reload(d.cfg.Now()) {
				d.resetHeartbeatTimer(hbTimer)
			}

		case c := <-d.completions:
			d.complete(ctx, c)
		}
		d.publish()
	}
}

// untilNextMinute returns the wait until the next wall-clock minute starts.
func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

func (d *Daemon) resetHeartbeatTimer(t *time.Timer) {
	t.Stop()
	if d.hbNext.IsZero() {
		return
	}
	t.Reset(max(d.hbNext.Sub(d.cfg.Now()), 0))
}

// scheduleHeartbeat computes the next heartbeat deadline after from, or
// clears it when the heartbeat is disabled.
func (d *Daemon) scheduleHeartbeat(from time.Time) {
	if !d.settings.Heartbeat.Enabled {
		d.hbNext, d.hbOK = time.Time{}, false
		return
	}
	d.hbNext, d.hbOK = heartbeat.NextAllowedAt(d.runtime.Windows, d.runtime.OffsetMinutes, d.runtime.Interval, from)
	if !d.hbOK {
		d.logger.Warn("every heartbeat deadline is excluded, check excludeWindows",
			"windows", len(d.runtime.Windows),
			"fallback", d.hbNext,
		)
	}
}

// fireHeartbeat runs the heartbeat prompt unless now falls in an exclusion
// window or the previous heartbeat is still queued or running, then
// schedules the next deadline.
func (d *Daemon) fireHeartbeat(ctx context.Context, now time.Time) {
	defer d.scheduleHeartbeat(now)

	if !d.settings.Heartbeat.Enabled {
		return
	}
	if heartbeat.IsExcluded(d.runtime.Windows, now, d.runtime.OffsetMinutes) {
		d.logger.Debug("heartbeat skipped, inside exclusion window")
		return
	}
	if d.hbInFlight {
		d.logger.Warn("heartbeat skipped, previous heartbeat still pending")
		return
	}

	prompt := workspace.ResolvePrompt(d.cfg.Workspace.Root, d.settings.Heartbeat.Prompt)
	if d.submit(ctx, HeartbeatLabel, prompt, d.settings.Heartbeat.Notify, true) {
		d.hbInFlight = true
	}
}

// tickCron fires every job whose schedule matches the minute of now.
// One-shot jobs have their schedule cleared as soon as they are queued.
func (d *Daemon) tickCron(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)
	if minute.Equal(d.lastCronMinute) {
		return
	}
	d.lastCronMinute = minute

	for _, job := range d.jobs {
		if job.Inert() || !cron.DueAt(job.Schedule, now, d.runtime.OffsetMinutes) {
			continue
		}
		if sched, ok := d.spent[job.Name]; ok && sched == job.Schedule {
			continue
		}

		d.logger.Info("job due", "job", job.Name, "schedule", job.Schedule, "recurring", job.Recurring)
		prompt := workspace.ResolvePrompt(d.cfg.Workspace.Root, job.Prompt)
		if !d.submit(ctx, JobLabelPrefix+job.Name, prompt, job.Notify, false) {
			continue
		}
		if job.Recurring {
			continue
		}

		d.spent[job.Name] = job.Schedule
		if err := d.cfg.Jobs.ClearSchedule(job.Name); err != nil {
			d.logger.Error("clearing one-shot schedule failed, suppressed until restart",
				"job", job.Name, "error", err)
		}
	}
}

// submit queues a run whose outcome comes back through d.completions.
func (d *Daemon) submit(ctx context.Context, label, prompt string, policy notify.Policy, isHeartbeat bool) bool {
	sctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	err := d.cfg.Runner.Submit(sctx, label, prompt, func(o runner.Outcome, err error) {
		c := completion{label: label, policy: policy, outcome: o, err: err, heartbeat: isHeartbeat}
		select {
		case d.completions <- c:
		case <-d.loopDone:
			d.finishDetached(c)
		}
	})
	if err != nil {
		d.logger.Error("run not queued", "label", label, "error", err)
		return false
	}
	return true
}

// complete handles a finished run on the loop goroutine.
func (d *Daemon) complete(ctx context.Context, c completion) {
	if c.heartbeat {
		d.hbInFlight = false
	}
	if c.err != nil {
		if !errors.Is(c.err, runner.ErrQueueClosed) {
			d.logger.Warn("run dropped", "label", c.label, "error", c.err)
		}
		return
	}
	d.forward(context.WithoutCancel(ctx), c)
}

// finishDetached forwards a result that completed after the loop exited,
// during the shutdown grace period.
func (d *Daemon) finishDetached(c completion) {
	if c.err != nil {
		return
	}
	d.forward(context.Background(), c)
}

// forward delivers the result per its notify policy without blocking the
// caller.
func (d *Daemon) forward(ctx context.Context, c completion) {
	result := c.outcome.Result
	if !c.policy.ShouldForward(result) {
		return
	}
	n := d.notifier

	d.forwards.Add(1)
	go func() {
		defer d.forwards.Done()
		if err := n.Forward(ctx, c.label, result); err != nil {
			d.logger.Warn("forwarding result failed", "label", c.label, "error", err)
		}
	}()
}

// reload re-reads settings and jobs. It reports whether the heartbeat
// schedule was recomputed.
func (d *Daemon) reload(now time.Time) bool {
	snap, err := d.cfg.Loader.Load()
	if err != nil {
		d.logger.Warn("reload incomplete, keeping previous values", "error", err)
	}

	rescheduled := false
	if snap.Settings != nil {
		hb := reload.HeartbeatChanges(d.settings, d.runtime, snap.Settings, snap.Runtime)
		sec := reload.SecurityChanges(d.settings, d.runtime, snap.Settings, snap.Runtime)
		for _, c := range sec {
			d.logger.Info("security setting changed", "field", c.Field, "old", c.Old, "new", c.New)
		}

		d.applySettings(snap.Settings, snap.Runtime)

		if len(hb) > 0 {
			for _, c := range hb {
				d.logger.Info("heartbeat setting changed", "field", c.Field, "old", c.Old, "new", c.New)
			}
			d.scheduleHeartbeat(now)
			rescheduled = true
		}
	}

	if snap.JobsOK {
		if snap.Fingerprint != d.fingerprint {
			d.logger.Info("jobs changed", "count", len(snap.Jobs))
		}
		d.jobs = snap.Jobs
		d.fingerprint = snap.Fingerprint
		d.pruneSpent()
	}
	return rescheduled
}

// pruneSpent forgets one-shot guards whose job was removed, cleared or
// rescheduled.
func (d *Daemon) pruneSpent() {
	if len(d.spent) == 0 {
		return
	}
	current := make(map[string]string, len(d.jobs))
	for _, j := range d.jobs {
		current[j.Name] = j.Schedule
	}
	for name, sched := range d.spent {
		if s, ok := current[name]; !ok || s != sched {
			delete(d.spent, name)
		}
	}
}

// publish writes the snapshot file and fans it out to subscribers. Write
// errors are logged and otherwise ignored.
func (d *Daemon) publish() {
	snap := d.snapshot()
	if err := state.Write(d.cfg.Workspace.StatePath(), snap); err != nil {
		d.logger.Warn("writing state snapshot failed", "error", err)
	}
	if d.cfg.Hub != nil {
		d.cfg.Hub.Publish(snap)
	}
}

func (d *Daemon) snapshot() state.Snapshot {
	return state.Build(state.Input{
		PID:           d.lock.PID(),
		StartedAt:     d.startedAt,
		Now:           d.cfg.Now(),
		Settings:      d.settings,
		Runtime:       d.runtime,
		Jobs:          d.jobs,
		HeartbeatNext: d.hbNext,
		HeartbeatOK:   d.hbOK,
		WebAddr:       d.cfg.WebAddr(),
		QueueDepth:    d.cfg.Runner.QueueDepth(),
	})
}
