// Package app wires the daemon together and implements the operations behind
// the tickclaw CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/tickclaw/internal/agent"
	"github.com/flemzord/tickclaw/internal/audit"
	"github.com/flemzord/tickclaw/internal/config"
	"github.com/flemzord/tickclaw/internal/core"
	"github.com/flemzord/tickclaw/internal/daemon"
	"github.com/flemzord/tickclaw/internal/gateway"
	"github.com/flemzord/tickclaw/internal/history"
	"github.com/flemzord/tickclaw/internal/jobs"
	"github.com/flemzord/tickclaw/internal/notify"
	"github.com/flemzord/tickclaw/internal/reload"
	"github.com/flemzord/tickclaw/internal/runner"
	"github.com/flemzord/tickclaw/internal/security"
	"github.com/flemzord/tickclaw/internal/session"
	"github.com/flemzord/tickclaw/internal/state"
	"github.com/flemzord/tickclaw/internal/workspace"
)

// RunParams configures the daemon.
type RunParams struct {
	// ProjectDir is the project the daemon manages. Defaults to the
	// working directory.
	ProjectDir string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level
	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer

	// Replace terminates a daemon already running for the project.
	Replace bool
}

// Run starts the daemon for the project and blocks until SIGINT or SIGTERM
// (or ctx cancellation). SIGHUP and changes to the settings file or jobs
// directory trigger an immediate reload.
func Run(ctx context.Context, params RunParams) error {
	projectDir, err := ResolveProjectDir(params.ProjectDir)
	if err != nil {
		return err
	}
	ws := workspace.New(projectDir)

	// Every log line passes through the redactor, which learns the
	// configured secrets below and on every reload.
	redactor := security.NewRedactor()
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := security.NewLogger(out, params.LogLevel, redactor)

	store := jobs.NewStore(ws.JobsDir(), logger)
	loader := reload.NewLoader(ws.SettingsPath(), store, logger)
	settings, err := loader.LoadSettings()
	if err != nil {
		return err
	}
	redactor.SetLiterals(settings.Secrets()...)
	rt := settings.Resolve(time.Now(), logger)

	hub := state.NewHub()
	metrics := gateway.NewMetrics(hub)
	observers := []runner.Observer{metrics}

	var runs gateway.RunStore
	hist, err := history.Open(ws.HistoryPath())
	if err != nil {
		logger.Warn("run history disabled", "error", err)
	} else {
		defer func() { _ = hist.Close() }()
		observers = append(observers, history.NewRecorder(hist, logger))
		runs = hist
	}

	run := runner.New(runner.Config{
		Invoker:    &agent.ExecInvoker{Binary: settings.Agent.Binary, Dir: ws.Root},
		Sessions:   session.NewStore(ws.SessionPath()),
		Identity:   workspace.NewIdentityLoader(ws),
		Memory:     workspace.NewMemoryLoader(ws),
		ProjectDir: ws.Root,
		Audit:      audit.NewWriter(audit.Config{Dir: ws.LogsDir(), Redactor: redactor}),
		Observers:  observers,
		Params:     runner.ParamsFrom(settings, rt.Level),
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reloads := make(chan struct{}, 1)
	requestReload := func() {
		select {
		case reloads <- struct{}{}:
		default:
		}
	}

	components := core.NewApp(logger)
	components.Add(signalComponent(logger, requestReload))
	components.Add(watcherComponent(ws, requestReload))

	webAddr := func() string { return "" }
	if settings.Web.Enabled {
		gw := gateway.New(gateway.Config{
			Bind:  settings.Web.Bind,
			Token: settings.Web.Token,
		}, gateway.Deps{
			Hub:     hub,
			Runs:    runs,
			Runner:  run,
			Reload:  requestReload,
			Metrics: metrics,
			Logger:  logger,
		})
		components.Add(gw)
		webAddr = gw.Addr
	}

	d := daemon.New(daemon.Config{
		Workspace:   ws,
		Loader:      loader,
		Jobs:        store,
		Runner:      run,
		NewNotifier: NewNotifier,
		Hub:         hub,
		Redactor:    redactor,
		Replace:     params.Replace,
		Reload:      reloads,
		WebAddr:     webAddr,
		OnStarted:   components.Start,
		Logger:      logger,
	})

	logger.Info("tickclaw starting",
		"version", params.Version,
		"commit", params.Commit,
		"project", ws.Root,
	)
	runErr := d.Run(ctx)
	stopErr := components.Stop(context.Background())
	if runErr == nil {
		logger.Info("shutdown complete")
	}
	return errors.Join(runErr, stopErr)
}

// NewNotifier builds the chat notifier for s: Telegram when a bot token is
// configured, otherwise a no-op.
func NewNotifier(s *config.Settings) (notify.Notifier, error) {
	if !s.Telegram.Enabled() {
		return notify.Nop{}, nil
	}
	return notify.NewTelegram(notify.TelegramConfig{
		Token:   s.Telegram.Token,
		ChatID:  int64(s.Telegram.ChatID),
		BaseURL: s.Telegram.BaseURL,
	})
}

// signalComponent turns SIGHUP into reload requests.
func signalComponent(logger *slog.Logger, requestReload func()) core.Component {
	hup := make(chan os.Signal, 1)
	done := make(chan struct{})
	return core.Func{
		ID: "sighup",
		OnStart: func(ctx context.Context) error {
			signal.Notify(hup, syscall.SIGHUP)
			go func() {
				for {
					select {
					case <-hup:
						logger.Info("SIGHUP received, reloading configuration")
						requestReload()
					case <-ctx.Done():
						return
					case <-done:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			signal.Stop(hup)
			close(done)
			return nil
		},
	}
}

// watcherComponent polls the settings file and jobs directory and turns
// changes into reload requests.
func watcherComponent(ws *workspace.Workspace, requestReload func()) core.Component {
	w := reload.NewWatcher(reload.WatcherConfig{
		Paths: []string{ws.SettingsPath(), ws.JobsDir()},
	})
	return core.Func{
		ID: "watcher",
		OnStart: func(ctx context.Context) error {
			w.Start(ctx)
			go func() {
				for {
					select {
					case <-w.Events():
						requestReload()
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			w.Stop()
			return nil
		},
	}
}

// ResolveProjectDir returns dir as an absolute path, or the working
// directory when dir is empty.
func ResolveProjectDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving project directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving project directory %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project directory %s is not a directory", abs)
	}
	return abs, nil
}
