package core

import "context"

// Starter is implemented by components that run background work
// (goroutines, listeners, pollers). Start must not block.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that need to clean up resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by components that can pick up a fresh task
// list without restarting.
type Reloader interface {
	Reload(ctx context.Context) error
}
