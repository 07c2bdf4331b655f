// Package core starts and stops the daemon's auxiliary components in order.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStopTimeout bounds Stop when the caller's context has no deadline.
const DefaultStopTimeout = 30 * time.Second

// App manages the lifecycle of a set of components.
type App struct {
	components []instance
	logger     *slog.Logger
}

type instance struct {
	component Component
	started   bool
}

// NewApp creates an App logging to logger.
func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &App{logger: logger.With("component", "core")}
}

// Add registers components. They start in the order added.
func (a *App) Add(components ...Component) {
	for _, c := range components {
		a.components = append(a.components, instance{component: c})
	}
}

// Start starts all components that implement Starter, in order.
// If any Start() fails, already-started components are stopped in reverse
// order.
func (a *App) Start(ctx context.Context) error {
	for i := range a.components {
		ci := &a.components[i]
		name := ci.component.Name()
		if s, ok := ci.component.(Starter); ok {
			a.logger.Info("starting component", "name", name)
			if err := s.Start(ctx); err != nil {
				a.logger.Error("component start failed", "name", name, "error", err)
				a.stopFrom(context.WithoutCancel(ctx), i-1)
				return fmt.Errorf("starting %s: %w", name, err)
			}
		}
		ci.started = true
	}
	return nil
}

// Stop stops all started components in reverse order and returns their
// errors joined.
func (a *App) Stop(ctx context.Context) error {
	return a.stopFrom(ctx, len(a.components)-1)
}

func (a *App) stopFrom(ctx context.Context, fromIndex int) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultStopTimeout)
		defer cancel()
	}

	var errs []error
	for i := fromIndex; i >= 0; i-- {
		ci := &a.components[i]
		if !ci.started {
			continue
		}
		ci.started = false
		s, ok := ci.component.(Stopper)
		if !ok {
			continue
		}
		name := ci.component.Name()
		a.logger.Info("stopping component", "name", name)
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("component stop error", "name", name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Func adapts plain functions into a Component.
type Func struct {
	ID      string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Name implements Component.
func (f Func) Name() string { return f.ID }

// Start implements Starter.
func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

// Stop implements Stopper.
func (f Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
