// Package daemon is the scheduler loop: it owns the live settings and job
// list, fires the heartbeat and cron jobs through the runner, hot-reloads
// configuration and publishes a state snapshot after every tick.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/tickclaw/internal/config"
	"github.com/flemzord/tickclaw/internal/jobs"
	"github.com/flemzord/tickclaw/internal/notify"
	"github.com/flemzord/tickclaw/internal/pidfile"
	"github.com/flemzord/tickclaw/internal/reload"
	"github.com/flemzord/tickclaw/internal/runner"
	"github.com/flemzord/tickclaw/internal/security"
	"github.com/flemzord/tickclaw/internal/state"
	"github.com/flemzord/tickclaw/internal/workspace"
)

// ErrAlreadyStarted is returned when Run is called more than once.
var ErrAlreadyStarted = errors.New("daemon: already started")

// Status is the daemon's lifecycle state.
type Status int32

// Lifecycle states, in order.
const (
	StatusNotRunning Status = iota
	StatusStarting
	StatusRunning
	StatusShuttingDown
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusNotRunning:
		return "not-running"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusShuttingDown:
		return "shutting-down"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// DefaultReloadPeriod is how often settings and jobs are re-read.
const DefaultReloadPeriod = 30 * time.Second

// replaceMargin is added to the shutdown grace when waiting out a replaced
// daemon.
const replaceMargin = 5 * time.Second

// Runner is the part of runner.Runner the daemon drives.
type Runner interface {
	Start(ctx context.Context)
	Close(ctx context.Context) error
	Configure(p runner.Params)
	Submit(ctx context.Context, label, prompt string, done func(runner.Outcome, error)) error
	QueueDepth() int
}

// NotifierFactory builds the notifier for the given settings.
type NotifierFactory func(s *config.Settings) (notify.Notifier, error)

// Config configures a Daemon.
type Config struct {
	Workspace *workspace.Workspace
	Loader    *reload.Loader
	Jobs      *jobs.Store
	Runner    Runner

	// NewNotifier defaults to one that always returns notify.Nop.
	NewNotifier NotifierFactory

	// Hub receives every snapshot; may be nil.
	Hub *state.Hub
	// Redactor is kept in sync with the secrets in settings; may be nil.
	Redactor *security.Redactor

	// Replace terminates a daemon already running for the project.
	Replace        bool
	ReplaceTimeout time.Duration

	// Reload forces an immediate reload (SIGHUP, file watcher).
	Reload       <-chan struct{}
	ReloadPeriod time.Duration

	// WebAddr reports the gateway's listen address for the snapshot.
	WebAddr func() string

	// OnStarted runs once the lock is held and settings are loaded, before
	// the loop starts. An error aborts startup.
	OnStarted func(ctx context.Context) error

	Logger *slog.Logger
	Now    func() time.Time
}

// Daemon is the scheduler loop. Create with New, then call Run once.
type Daemon struct {
	cfg    Config
	logger *slog.Logger
	status atomic.Int32

	lock      *pidfile.Lock
	startedAt time.Time

	// Loop-owned state. Only the Run goroutine touches these once Running.
	settings       *config.Settings
	runtime        config.Runtime
	jobs           []jobs.Job
	fingerprint    string
	notifier       notify.Notifier
	spent          map[string]string
	hbNext         time.Time
	hbOK           bool
	hbInFlight     bool
	lastCronMinute time.Time

	completions chan completion
	forwards    sync.WaitGroup
	loopDone    chan struct{}
}

// completion carries a finished run back into the loop.
type completion struct {
	label     string
	policy    notify.Policy
	outcome   runner.Outcome
	err       error
	heartbeat bool
}

// New creates a daemon.
func New(cfg Config) *Daemon {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ReloadPeriod <= 0 {
		cfg.ReloadPeriod = DefaultReloadPeriod
	}
	if cfg.NewNotifier == nil {
		cfg.NewNotifier = func(*config.Settings) (notify.Notifier, error) { return notify.Nop{}, nil }
	}
	if cfg.WebAddr == nil {
		cfg.WebAddr = func() string { return "" }
	}
	return &Daemon{
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "daemon"),
		notifier:    notify.Nop{},
		spent:       make(map[string]string),
		completions: make(chan completion, 64),
		loopDone:    make(chan struct{}),
	}
}

// ReplaceTimeoutFor is how long --replace waits for the previous daemon: its
// shutdown grace plus a margin for releasing the lock, never below
// pidfile.DefaultReplaceTimeout.
func ReplaceTimeoutFor(grace time.Duration) time.Duration {
	return max(grace+replaceMargin, pidfile.DefaultReplaceTimeout)
}

// Status returns the current lifecycle state.
func (d *Daemon) Status() Status {
	return Status(d.status.Load())
}

// Run starts the daemon and blocks until ctx is cancelled, then shuts down.
// Startup failures (lock conflict, invalid settings) are returned before
// the daemon enters Running.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.status.CompareAndSwap(int32(StatusNotRunning), int32(StatusStarting)) {
		return ErrAlreadyStarted
	}

	if err := d.start(); err != nil {
		d.status.Store(int32(StatusStopped))
		return err
	}
	if d.cfg.OnStarted != nil {
		if err := d.cfg.OnStarted(ctx); err != nil {
			d.abort()
			return err
		}
	}

	d.cfg.Runner.Start(ctx)
	d.status.Store(int32(StatusRunning))
	d.logger.Info("daemon running",
		"pid", d.lock.PID(),
		"project", d.cfg.Workspace.Root,
		"jobs", len(d.jobs),
		"heartbeat", d.settings.Heartbeat.Enabled,
	)

	d.loop(ctx)
	return d.shutdown()
}

// start is the Starting phase: lock, initial load, first schedule.
func (d *Daemon) start() error {
	if err := d.cfg.Workspace.EnsureStructure(); err != nil {
		return fmt.Errorf("daemon: preparing %s: %w", d.cfg.Workspace.StateDir(), err)
	}

	// Settings come first: the replace timeout depends on the shutdown grace.
	snap, err := d.cfg.Loader.Load()
	if snap.Settings == nil {
		return fmt.Errorf("daemon: loading settings: %w", err)
	}
	if err != nil {
		d.logger.Warn("jobs unavailable at startup", "error", err)
	}

	timeout := d.cfg.ReplaceTimeout
	if timeout <= 0 {
		timeout = ReplaceTimeoutFor(snap.Runtime.ShutdownGrace)
	}
	lock, err := pidfile.Acquire(d.cfg.Workspace.PIDPath(), pidfile.Options{
		Replace: d.cfg.Replace,
		Timeout: timeout,
		Logger:  d.logger,
	})
	if err != nil {
		return err
	}
	d.lock = lock
	d.startedAt = d.cfg.Now()

	d.applySettings(snap.Settings, snap.Runtime)
	if snap.JobsOK {
		d.jobs = snap.Jobs
		d.fingerprint = snap.Fingerprint
	}
	d.scheduleHeartbeat(d.cfg.Now())
	d.publish()
	return nil
}

// abort undoes start when startup fails after the lock was taken.
func (d *Daemon) abort() {
	if err := d.lock.Release(); err != nil {
		d.logger.Warn("releasing pid lock failed", "error", err)
	}
	_ = os.Remove(d.cfg.Workspace.StatePath())
	d.status.Store(int32(StatusStopped))
}

// shutdown is the ShuttingDown phase. The in-flight run gets the configured
// grace period; it is never killed.
func (d *Daemon) shutdown() error {
	d.status.Store(int32(StatusShuttingDown))
	d.logger.Info("daemon shutting down")

	grace := d.runtime.ShutdownGrace
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := d.cfg.Runner.Close(ctx); err != nil {
		d.logger.Warn("in-flight run still busy after grace period, exiting anyway", "grace", grace)
	}
	d.drainCompletions()

	forwarded := make(chan struct{})
	go func() {
		d.forwards.Wait()
		close(forwarded)
	}()
	select {
	case <-forwarded:
	case <-ctx.Done():
		d.logger.Warn("notifications still pending at exit")
	}

	var errs []error
	if err := d.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("daemon: releasing pid lock: %w", err))
	}
	if err := os.Remove(d.cfg.Workspace.StatePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("removing state snapshot failed", "error", err)
	}

	d.status.Store(int32(StatusStopped))
	d.logger.Info("daemon stopped")
	return errors.Join(errs...)
}

// drainCompletions forwards results that finished after the last loop
// iteration.
func (d *Daemon) drainCompletions() {
	for {
		select {
		case c := <-d.completions:
			d.finishDetached(c)
		default:
			return
		}
	}
}

// applySettings adopts new settings and propagates them to the runner,
// redactor and notifier.
func (d *Daemon) applySettings(s *config.Settings, rt config.Runtime) {
	prev := d.settings
	d.settings = s
	d.runtime = rt

	if d.cfg.Redactor != nil {
		d.cfg.Redactor.SetLiterals(s.Secrets()...)
	}
	d.cfg.Runner.Configure(runner.ParamsFrom(s, rt.Level))

	if prev != nil && (prev.Web != s.Web || prev.Agent != s.Agent) {
		d.logger.Warn("web and agent.binary settings changed; restart the daemon to apply them")
	}

	if prev == nil || prev.Telegram != s.Telegram {
		n, err := d.cfg.NewNotifier(s)
		if err != nil {
			d.logger.Error("notifier unavailable, results will not be forwarded", "error", err)
			n = notify.Nop{}
		}
		d.notifier = n
	}
}
