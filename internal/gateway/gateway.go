// Package gateway serves the daemon's status over HTTP: health, the latest
// state snapshot, run history, Prometheus metrics and a WebSocket stream of
// snapshots, plus a few authenticated control endpoints.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flemzord/tickclaw/internal/history"
	"github.com/flemzord/tickclaw/internal/runner"
	"github.com/flemzord/tickclaw/internal/state"
)

// RunStore lists recorded runs, newest first.
type RunStore interface {
	Recent(ctx context.Context, label string, n int) ([]history.Run, error)
}

// Runner accepts ad-hoc runs and session resets.
type Runner interface {
	Submit(ctx context.Context, label, prompt string, done func(runner.Outcome, error)) error
	Reset(ctx context.Context) error
}

// Deps are the gateway's collaborators. Only Hub is required; endpoints
// whose dependency is missing answer 503.
type Deps struct {
	Hub     *state.Hub
	Runs    RunStore
	Runner  Runner
	Reload  func()
	Metrics *Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Gateway is the HTTP status server.
type Gateway struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	startedAt time.Time

	mu     sync.Mutex
	server *http.Server
	addr   string
	done   chan struct{}
}

// New creates a gateway. It does not listen until Start.
func New(cfg Config, deps Deps) *Gateway {
	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Hub == nil {
		deps.Hub = state.NewHub()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(deps.Hub)
	}
	return &Gateway{
		config:    cfg,
		deps:      deps,
		logger:    deps.Logger.With("component", "gateway"),
		startedAt: deps.Now(),
		done:      make(chan struct{}),
	}
}

// Name identifies the gateway in lifecycle logs.
func (g *Gateway) Name() string { return "gateway" }

// Handler returns the routed handler without starting a listener.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	server := &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	g.mu.Lock()
	g.server = server
	g.addr = ln.Addr().String()
	g.mu.Unlock()

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop closes open streams and shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	server := g.server
	g.server = nil
	g.mu.Unlock()
	if server == nil {
		return nil
	}

	close(g.done)

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return server.Shutdown(shutdownCtx)
}
