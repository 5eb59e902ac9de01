// Package reload picks up task store edits made while the scheduler runs,
// via file polling and signal handling.
package reload

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the files whose changes trigger a reload. A SQLite store
	// watches both the database and its -wal file.
	Paths []string

	// PollInterval is how often to check for file changes.
	// Defaults to 5 seconds if zero.
	PollInterval time.Duration
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Event reports that at least one watched path changed.
type Event struct {
	Path string
	At   time.Time
}

// Watcher polls files for modifications. Consecutive changes between two
// reads of Events collapse into one event.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Safe to call multiple times; only the first call
// starts the goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
	return nil
}

// Events returns the channel of change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if !w.started.Load() {
		return nil
	}
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fingerprint identifies one observed state of a file. A missing file is
// the zero value, so creation and removal both count as changes.
type fingerprint struct {
	mod  time.Time
	size int64
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	last := w.snapshot()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.snapshot()
			if i := changed(last, current); i >= 0 {
				select {
				case w.events <- Event{Path: w.cfg.Paths[i], At: time.Now()}:
				default:
					// Drop event if channel is full (debounce).
				}
			}
			last = current
		}
	}
}

func (w *Watcher) snapshot() []fingerprint {
	out := make([]fingerprint, len(w.cfg.Paths))
	for i, p := range w.cfg.Paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		out[i] = fingerprint{mod: info.ModTime(), size: info.Size()}
	}
	return out
}

// changed returns the index of the first differing path, or -1.
func changed(prev, cur []fingerprint) int {
	for i := range cur {
		if cur[i] != prev[i] {
			return i
		}
	}
	return -1
}
