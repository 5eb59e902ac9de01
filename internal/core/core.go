// Package core wires long-running components into one ordered lifecycle.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App starts components in registration order and stops them in reverse.
type App struct {
	logger     *slog.Logger
	components []component
}

type component struct {
	name    string
	impl    any
	started bool
}

// NewApp creates an empty App.
func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger.With("component", "core")}
}

// Add registers a component. impl may implement any of Starter, Stopper
// and Reloader.
func (a *App) Add(name string, impl any) {
	a.components = append(a.components, component{name: name, impl: impl})
}

// Start starts every Starter in order. If one fails, the components that
// already started are stopped in reverse order.
func (a *App) Start(ctx context.Context) error {
	for i := range a.components {
		c := &a.components[i]
		s, ok := c.impl.(Starter)
		if !ok {
			c.started = true
			continue
		}
		a.logger.Info("starting component", "name", c.name)
		if err := s.Start(ctx); err != nil {
			a.logger.Error("component start failed", "name", c.name, "error", err)
			a.stopFrom(i - 1)
			return fmt.Errorf("starting %s: %w", c.name, err)
		}
		c.started = true
	}
	a.logger.Info("all components started", "count", len(a.components))
	return nil
}

// Stop stops all started components in reverse order with a timeout.
func (a *App) Stop() {
	a.stopFrom(len(a.components) - 1)
}

func (a *App) stopFrom(index int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := index; i >= 0; i-- {
		c := &a.components[i]
		if !c.started {
			continue
		}
		if s, ok := c.impl.(Stopper); ok {
			a.logger.Info("stopping component", "name", c.name)
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("component stop error", "name", c.name, "error", err)
			}
		}
		c.started = false
	}
}

// Reload calls Reload on every started Reloader. Returns a joined error
// if any component fails.
func (a *App) Reload(ctx context.Context) error {
	var errs []error
	for i := range a.components {
		c := &a.components[i]
		r, ok := c.impl.(Reloader)
		if !ok || !c.started {
			continue
		}
		a.logger.Info("reloading component", "name", c.name)
		if err := r.Reload(ctx); err != nil {
			a.logger.Error("component reload failed", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("reloading %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// Loop adapts a blocking function into a Starter/Stopper pair: Start runs
// fn in a goroutine with a derived context, Stop cancels it and waits.
type Loop struct {
	fn func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewLoop wraps fn.
func NewLoop(fn func(ctx context.Context) error) *Loop {
	return &Loop{fn: fn}
}

// Start implements Starter.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return errors.New("core: loop already started")
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		err := l.fn(ctx)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
	}()
	return nil
}

// Stop implements Stopper. It returns the loop's own error, or ctx's if
// the loop does not exit in time.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed when the loop has exited. Nil before Start.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}
