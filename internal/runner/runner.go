// Package runner serializes every agent invocation through one FIFO queue,
// resuming the project's single session and failing over to the fallback
// model when the primary is rate limited.
package runner

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/flemzord/tickclaw/internal/agent"
	"github.com/flemzord/tickclaw/internal/audit"
	"github.com/flemzord/tickclaw/internal/config"
	"github.com/flemzord/tickclaw/internal/security"
	"github.com/flemzord/tickclaw/internal/session"
	"github.com/flemzord/tickclaw/internal/workspace"
	"github.com/google/uuid"
)

// ExitSpawnFailed is the exit code reported when the agent process could not
// be started at all.
const ExitSpawnFailed = -1

// Which configuration answered a run.
const (
	AnsweredPrimary  = "primary"
	AnsweredFallback = "fallback"
)

// Params are the settings-derived inputs of a run. The scheduler replaces
// them on every reload through Configure.
type Params struct {
	Primary         config.ModelSettings
	Fallback        config.ModelSettings
	HasFallback     bool
	Level           security.Level
	AllowedTools    []string
	DisallowedTools []string
	Secrets         []string
}

// ParamsFrom derives Params from settings and the resolved security level.
func ParamsFrom(s *config.Settings, level security.Level) Params {
	fb, ok := s.FallbackModel()
	return Params{
		Primary:         s.Primary(),
		Fallback:        fb,
		HasFallback:     ok,
		Level:           level,
		AllowedTools:    s.Security.AllowedTools,
		DisallowedTools: s.Security.DisallowedTools,
		Secrets:         s.Secrets(),
	}
}

// Outcome describes one finished run.
type Outcome struct {
	RunID      string
	Label      string
	StartedAt  time.Time
	FinishedAt time.Time
	SessionID  string
	NewSession bool
	// RateLimited is set when the primary answered with the rate-limit
	// signature, whether or not a fallback was tried.
	RateLimited bool
	Answered    string
	Model       string
	// Result carries the reply text when the structured output parsed, and
	// the raw stdout otherwise.
	Result  agent.Result
	LogPath string
}

// Observer is notified after every run, from the queue goroutine.
type Observer interface {
	RunFinished(ctx context.Context, o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, o Outcome)

// RunFinished implements Observer.
func (f ObserverFunc) RunFinished(ctx context.Context, o Outcome) { f(ctx, o) }

// Config configures a Runner.
type Config struct {
	Invoker  agent.Invoker
	Sessions *session.Store

	// Identity and Memory supply system prompt fragments; either may be nil.
	Identity workspace.TextLoader
	Memory   workspace.TextLoader

	// ProjectDir is named in the directory-scoping clause.
	ProjectDir string

	// Audit may be nil to skip per-run log files.
	Audit     *audit.Writer
	Observers []Observer

	Params    Params
	QueueSize int
	Logger    *slog.Logger

	// BaseEnv defaults to os.Environ.
	BaseEnv func() []string
	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
}

// Runner executes agent turns strictly one at a time.
type Runner struct {
	cfg    Config
	queue  *Queue
	params atomic.Pointer[Params]
	logger *slog.Logger
}

// New creates a Runner. Call Start before submitting work.
func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.BaseEnv == nil {
		cfg.BaseEnv = os.Environ
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	logger := cfg.Logger.With("component", "runner")

	r := &Runner{
		cfg:    cfg,
		queue:  NewQueue(cfg.QueueSize, logger),
		logger: logger,
	}
	r.Configure(cfg.Params)
	return r
}

// Start launches the queue consumer.
func (r *Runner) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Close stops the queue and waits for the in-flight run until ctx expires.
func (r *Runner) Close(ctx context.Context) error {
	return r.queue.Close(ctx)
}

// Configure replaces the run parameters. Runs already started keep theirs.
func (r *Runner) Configure(p Params) {
	r.params.Store(&p)
}

// QueueDepth returns the number of runs waiting or in flight.
func (r *Runner) QueueDepth() int {
	return r.queue.Depth()
}

// Enqueue appends fn to the queue. It runs after every previously queued
// task has settled.
func (r *Runner) Enqueue(ctx context.Context, label string, fn func(ctx context.Context)) error {
	return r.queue.enqueue(ctx, task{label: label, run: fn, drop: func(error) {}})
}

// Submit queues a run and calls done with its outcome from the queue
// goroutine. done receives a non-nil error only when the run never happened.
func (r *Runner) Submit(ctx context.Context, label, prompt string, done func(Outcome, error)) error {
	if done == nil {
		done = func(Outcome, error) {}
	}
	var settled atomic.Bool
	finish := func(o Outcome, err error) {
		if settled.CompareAndSwap(false, true) {
			done(o, err)
		}
	}
	return r.queue.enqueue(ctx, task{
		label: label,
		run:   func(ctx context.Context) { finish(r.run(ctx, label, prompt), nil) },
		drop:  func(err error) { finish(Outcome{Label: label}, err) },
	})
}

// Execute queues a run and waits for it. If ctx ends first the run still
// happens; only the wait is abandoned.
func (r *Runner) Execute(ctx context.Context, label, prompt string) (Outcome, error) {
	type reply struct {
		o   Outcome
		err error
	}
	ch := make(chan reply, 1)
	if err := r.Submit(ctx, label, prompt, func(o Outcome, err error) { ch <- reply{o, err} }); err != nil {
		return Outcome{}, err
	}
	select {
	case rep := <-ch:
		return rep.o, rep.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Reset deletes the session once every queued run has finished, so the
// next run starts a new conversation.
func (r *Runner) Reset(ctx context.Context) error {
	ch := make(chan error, 1)
	err := r.queue.enqueue(ctx, task{
		label: "reset-session",
		run:   func(context.Context) { ch <- r.cfg.Sessions.Reset() },
		drop:  func(err error) { ch <- err },
	})
	if err != nil {
		return err
	}
	select {
	case err := <-ch:
		if err == nil {
			r.logger.Info("session reset")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, label, prompt string) Outcome {
	params := *r.params.Load()
	o := Outcome{
		RunID:     r.cfg.NewID(),
		Label:     label,
		StartedAt: r.cfg.Now(),
		Answered:  AnsweredPrimary,
		Model:     params.Primary.Model,
	}
	logger := r.logger.With("label", label, "run_id", o.RunID)

	sess, err := r.cfg.Sessions.Load()
	if err != nil {
		logger.Warn("session unreadable, starting a new one", "error", err)
		sess = nil
	}
	o.NewSession = sess == nil
	if sess != nil {
		o.SessionID = sess.ID
	}

	system, errs := buildSystemPrompt(r.cfg.Identity, r.cfg.Memory, r.cfg.ProjectDir, params.Level)
	for _, err := range errs {
		logger.Warn("system prompt fragment unavailable", "error", err)
	}

	req := agent.Request{
		Prompt:       prompt,
		SystemPrompt: system,
		ResumeID:     o.SessionID,
		Model:        params.Primary.Model,
		ExtraArgs:    security.Args(params.Level, params.AllowedTools, params.DisallowedTools),
	}
	baseEnv := security.ChildEnv(r.cfg.BaseEnv(), params.Secrets...)

	logger.Info("agent run starting", "new_session", o.NewSession, "model", req.Model)
	raw := r.spawn(ctx, req, agent.Env(baseEnv, params.Primary.API), logger)

	if agent.IsRateLimited(raw.Stdout, raw.Stderr) {
		o.RateLimited = true
		if params.HasFallback {
			fb := params.Fallback
			req.Model = cmp.Or(fb.Model, params.Primary.Model)
			logger.Warn("primary rate limited, retrying with fallback", "model", req.Model)

			raw = r.spawn(ctx, req, agent.Env(baseEnv, cmp.Or(fb.API, params.Primary.API)), logger)
			o.Answered = AnsweredFallback
			o.Model = req.Model
		} else {
			logger.Warn("primary rate limited and no fallback configured")
		}
	}

	o.Result = raw
	out, parseErr := agent.ParseOutput(raw.Stdout)
	switch {
	case parseErr != nil:
		if !raw.Failed() {
			logger.Warn("agent output unparseable, returning raw stdout", "error", parseErr)
		}
	default:
		o.Result.Stdout = out.Text
		if out.IsError && o.Result.ExitCode == 0 {
			o.Result.ExitCode = 1
		}
	}

	if o.NewSession {
		if parseErr == nil && !o.Result.Failed() && out.SessionID != "" {
			if _, err := r.cfg.Sessions.Create(out.SessionID); err != nil {
				logger.Error("persisting session failed", "error", err)
			} else {
				o.SessionID = out.SessionID
				logger.Info("session created", "session_id", out.SessionID)
			}
		}
	} else if err := r.cfg.Sessions.Touch(); err != nil {
		logger.Warn("touching session failed", "error", err)
	}

	o.FinishedAt = r.cfg.Now()

	if r.cfg.Audit != nil {
		entry := audit.Entry{
			RunID:      o.RunID,
			Label:      label,
			StartedAt:  o.StartedAt,
			FinishedAt: o.FinishedAt,
			SessionID:  o.SessionID,
			NewSession: o.NewSession,
			Answered:   o.Answered,
			Model:      o.Model,
			Prompt:     prompt,
			Result:     raw,
		}
		path, err := r.cfg.Audit.Write(entry)
		if err != nil {
			logger.Warn("audit log write failed", "error", err)
		}
		o.LogPath = path
	}

	logger.Info("agent run finished",
		"exit_code", o.Result.ExitCode,
		"answered", o.Answered,
		"duration", o.FinishedAt.Sub(o.StartedAt).Round(time.Millisecond),
	)

	for _, obs := range r.cfg.Observers {
		obs.RunFinished(ctx, o)
	}
	return o
}

func (r *Runner) spawn(ctx context.Context, req agent.Request, env []string, logger *slog.Logger) agent.Result {
	res, err := r.cfg.Invoker.Spawn(ctx, req.Args(), env)
	if err != nil {
		logger.Error("agent process failed to start", "error", err)
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
		res.ExitCode = ExitSpawnFailed
	}
	return res
}
