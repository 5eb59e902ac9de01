// Package schedulertest provides test doubles for the scheduler package.
package schedulertest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/tasksched/internal/executor"
	"github.com/flemzord/tasksched/internal/scheduler"
	"github.com/flemzord/tasksched/internal/task"
)

// Compile-time interface checks.
var (
	_ scheduler.Executor = (*FakeExecutor)(nil)
	_ scheduler.Clock    = (*ManualClock)(nil)
	_ scheduler.Observer = (*Recorder)(nil)
)

// FakeExecutor records calls and returns configurable results.
type FakeExecutor struct {
	// ExecuteFunc overrides the default successful result when set.
	ExecuteFunc func(ctx context.Context, rec task.Record) executor.Result

	mu    sync.Mutex
	calls []string
}

// Execute implements scheduler.Executor.
func (f *FakeExecutor) Execute(ctx context.Context, rec task.Record) executor.Result {
	f.mu.Lock()
	f.calls = append(f.calls, rec.ID)
	f.mu.Unlock()

	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, rec)
	}
	return executor.Result{Success: true, Started: time.Now()}
}

// Calls returns the ids passed to Execute, in call order.
func (f *FakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times id was executed.
func (f *FakeExecutor) CallCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == id {
			n++
		}
	}
	return n
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock set to t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now implements scheduler.Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Recorder collects observed events.
type Recorder struct {
	mu     sync.Mutex
	events []scheduler.Event
}

// Observe implements scheduler.Observer.
func (r *Recorder) Observe(ev scheduler.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []scheduler.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduler.Event(nil), r.events...)
}
