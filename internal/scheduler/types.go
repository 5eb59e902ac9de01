package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/tasksched/internal/executor"
	"github.com/flemzord/tasksched/internal/recurrence"
	"github.com/flemzord/tasksched/internal/task"
)

// Executor runs one task. Implementations must capture every failure in
// the returned result.
type Executor interface {
	Execute(ctx context.Context, rec task.Record) executor.Result
}

// Clock supplies the current time to the run loop.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Event describes one finished execution.
type Event struct {
	TaskID     string          `json:"task_id"`
	Name       string          `json:"name"`
	Occurrence time.Time       `json:"occurrence"`
	Result     executor.Result `json:"result"`
}

// Observer is notified after every scheduled execution.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Mode selects how due tasks are dispatched.
type Mode int

const (
	// ModeSync runs due tasks one after another inside the tick. A slow
	// task delays the next tick.
	ModeSync Mode = iota
	// ModeAsync runs each due task in its own goroutine.
	ModeAsync
)

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "sync"
}

// ParseMode parses "sync" (default when empty) or "async".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sync":
		return ModeSync, nil
	case "async":
		return ModeAsync, nil
	default:
		return 0, fmt.Errorf("scheduler: unknown dispatch mode %q (supported: sync, async)", s)
	}
}

// Entry is a point-in-time view of one registered task.
type Entry struct {
	Record    task.Record     `json:"task"`
	Rule      recurrence.Rule `json:"-"`
	Describe  string          `json:"rule"`
	NextRun   time.Time       `json:"next_run"`
	LastFired time.Time       `json:"last_fired,omitzero"`
}
