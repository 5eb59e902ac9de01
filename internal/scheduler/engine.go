// Package scheduler is the scheduling engine: it evaluates every
// registered task's recurrence rule on each tick and hands due tasks to
// an Executor exactly once per occurrence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/tasksched/internal/executor"
	"github.com/flemzord/tasksched/internal/recurrence"
	"github.com/flemzord/tasksched/internal/task"
)

const defaultPollInterval = time.Second

// Config configures an Engine.
type Config struct {
	// Executor runs due tasks. Required.
	Executor Executor

	Logger *slog.Logger

	// Tolerance is the width of each firing window. Defaults to one minute.
	Tolerance time.Duration

	// PollInterval is the pause between ticks in Run. Defaults to 1s.
	PollInterval time.Duration

	// Mode selects synchronous (default) or asynchronous dispatch.
	Mode Mode

	// Observers are notified after each execution, in order.
	Observers []Observer

	// Clock defaults to the system clock.
	Clock Clock
}

type job struct {
	rec  task.Record
	rule recurrence.Rule
}

// Engine owns the registered task set and the fired-occurrence state.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	tracker *Tracker

	// tickMu serializes Tick against Register and Reload so a tick always
	// sees one consistent task set.
	tickMu sync.Mutex

	mu   sync.RWMutex
	jobs []job

	inflight sync.WaitGroup
}

// New creates an engine with no registered tasks.
func New(cfg Config) (*Engine, error) {
	if cfg.Executor == nil {
		return nil, errors.New("scheduler: executor is required")
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = recurrence.DefaultTolerance
	}
	if cfg.Tolerance >= 24*time.Hour {
		return nil, fmt.Errorf("scheduler: tolerance %s must be under 24h", cfg.Tolerance)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.With("component", "scheduler"),
		tracker: NewTracker(),
	}, nil
}

// Register validates and adds tasks. A task with an invalid rule or an id
// that is already registered is skipped; its error is logged and returned.
// The remaining tasks are registered regardless.
func (e *Engine) Register(records []task.Record) []error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{}, len(e.jobs)+len(records))
	for _, j := range e.jobs {
		seen[j.rec.ID] = struct{}{}
	}

	built, errs := e.build(records, seen)
	e.jobs = append(e.jobs, built...)
	return errs
}

// Reload replaces the registered set with records. Fired state is kept
// for tasks whose id and rule did not change, so a reload inside a firing
// window never re-fires a task.
func (e *Engine) Reload(records []task.Record) []error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	built, errs := e.build(records, make(map[string]struct{}, len(records)))

	e.mu.Lock()
	previous := make(map[string]recurrence.Rule, len(e.jobs))
	for _, j := range e.jobs {
		previous[j.rec.ID] = j.rule
	}
	e.jobs = built
	e.mu.Unlock()

	kept := 0
	for _, j := range built {
		if old, ok := previous[j.rec.ID]; ok {
			delete(previous, j.rec.ID)
			if old.Equal(j.rule) {
				kept++
				continue
			}
		}
		e.tracker.Forget(j.rec.ID)
	}
	for id := range previous {
		e.tracker.Forget(id)
	}

	e.logger.Info("scheduler: tasks reloaded", "tasks", len(built), "unchanged", kept, "skipped", len(errs))
	return errs
}

func (e *Engine) build(records []task.Record, seen map[string]struct{}) ([]job, []error) {
	var (
		built []job
		errs  []error
	)
	for _, rec := range records {
		rec = task.Normalize(rec)
		if err := rec.Validate(); err != nil {
			errs = append(errs, e.skip(rec, err))
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			errs = append(errs, e.skip(rec, task.ErrDuplicateID))
			continue
		}
		rule, err := rec.Rule()
		if err != nil {
			errs = append(errs, e.skip(rec, err))
			continue
		}
		seen[rec.ID] = struct{}{}
		built = append(built, job{rec: rec, rule: rule})
		e.logger.Info("scheduler: task registered", "task", rec.ID, "name", rec.Name, "rule", rule.String())
	}
	return built, errs
}

func (e *Engine) skip(rec task.Record, err error) error {
	err = fmt.Errorf("scheduler: skipping task %q: %w", rec.ID, err)
	e.logger.Warn("scheduler: task rejected", "task", rec.ID, "error", err)
	return err
}

// Tick evaluates every registered task against now, in registration
// order, and dispatches those with an unclaimed due occurrence. It returns
// the number of dispatched tasks. A failing or panicking task never stops
// the evaluation of the tasks after it.
func (e *Engine) Tick(ctx context.Context, now time.Time) int {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.RLock()
	jobs := e.jobs
	e.mu.RUnlock()

	// Executions outlive loop cancellation: a tick is applied in full.
	execCtx := context.WithoutCancel(ctx)

	dispatched := 0
	for _, j := range jobs {
		occ, due := e.due(j, now)
		if !due || !e.tracker.Claim(j.rec.ID, occ) {
			continue
		}
		dispatched++
		e.logger.Info("scheduler: task due", "task", j.rec.ID, "occurrence", occ.Slot)

		if e.cfg.Mode == ModeAsync {
			e.inflight.Add(1)
			go func() {
				defer e.inflight.Done()
				e.execute(execCtx, j, occ)
			}()
			continue
		}
		e.execute(execCtx, j, occ)
	}
	return dispatched
}

// due evaluates j's rule. A panic during evaluation is logged and treated
// as not due.
func (e *Engine) due(j job, now time.Time) (occ recurrence.Occurrence, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scheduler: rule evaluation panicked", "task", j.rec.ID, "panic", r)
			occ, ok = recurrence.Occurrence{}, false
		}
	}()
	return j.rule.Matches(now, e.cfg.Tolerance)
}

func (e *Engine) execute(ctx context.Context, j job, occ recurrence.Occurrence) {
	var res executor.Result
	func() {
		defer func() {
			if r := recover(); r != nil {
				res = executor.Result{
					ExitCode:    -1,
					ErrorDetail: fmt.Sprintf("executor panicked: %v", r),
					Started:     time.Now(),
				}
			}
		}()
		res = e.cfg.Executor.Execute(ctx, j.rec)
	}()

	if res.Success {
		e.logger.Info("scheduler: task succeeded",
			"task", j.rec.ID,
			"duration", res.Duration,
		)
	} else {
		e.logger.Error("scheduler: task failed",
			"task", j.rec.ID,
			"exit_code", res.ExitCode,
			"error", res.ErrorDetail,
			"duration", res.Duration,
		)
	}

	ev := Event{TaskID: j.rec.ID, Name: j.rec.Name, Occurrence: occ.Slot, Result: res}
	for _, o := range e.cfg.Observers {
		e.notify(o, ev)
	}
}

func (e *Engine) notify(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scheduler: observer panicked", "task", ev.TaskID, "panic", r)
		}
	}()
	o.Observe(ev)
}

// Run ticks at the configured poll interval until ctx is cancelled.
// Cancellation is observed between ticks only, so it takes effect within
// one poll interval. In async mode Run waits for in-flight executions
// before returning.
func (e *Engine) Run(ctx context.Context) error {
	defer e.inflight.Wait()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.logger.Info("scheduler: started",
		"tasks", e.Len(),
		"poll_interval", e.cfg.PollInterval,
		"mode", e.cfg.Mode.String(),
	)
	for {
		if ctx.Err() != nil {
			e.logger.Info("scheduler: stopped")
			return nil
		}
		e.Tick(ctx, e.cfg.Clock.Now())

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Wait blocks until all asynchronous executions have finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Len returns the number of registered tasks.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.jobs)
}

// Jobs returns a snapshot of the registered tasks, in registration order.
func (e *Engine) Jobs() []Entry {
	e.mu.RLock()
	jobs := e.jobs
	e.mu.RUnlock()

	now := e.cfg.Clock.Now()
	entries := make([]Entry, 0, len(jobs))
	for _, j := range jobs {
		entry := Entry{
			Record:   j.rec,
			Rule:     j.rule,
			Describe: j.rule.String(),
			NextRun:  j.rule.Next(now),
		}
		if last, ok := e.tracker.Last(j.rec.ID); ok {
			entry.LastFired = last
		}
		entries = append(entries, entry)
	}
	return entries
}
