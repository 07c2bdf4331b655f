package core

import "context"

// Component is a long-lived part of the daemon managed by App.
type Component interface {
	Name() string
}

// Starter is implemented by components that need to start background work
// (goroutines, listeners, connections). Start must not block.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that need to clean up resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}
