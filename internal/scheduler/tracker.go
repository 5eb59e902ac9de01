package scheduler

import (
	"sync"
	"time"

	"github.com/flemzord/tasksched/internal/recurrence"
)

// Tracker remembers, per task id, the last occurrence that fired. A rule
// can match on many consecutive ticks of the same window; only the first
// claim of an occurrence wins.
type Tracker struct {
	mu    sync.Mutex
	fired map[string]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{fired: make(map[string]time.Time)}
}

// Claim records occ as fired for id and reports whether the caller should
// dispatch it. It returns false when occ (or a later occurrence) was
// already claimed. Check and set happen under one lock.
func (t *Tracker) Claim(id string, occ recurrence.Occurrence) bool {
	if occ.IsZero() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.fired[id]; ok && !occ.Slot.After(last) {
		return false
	}
	t.fired[id] = occ.Slot
	return true
}

// Last returns the slot of the last fired occurrence for id.
func (t *Tracker) Last(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.fired[id]
	return last, ok
}

// Forget drops the fired state of id.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fired, id)
}

// Len returns the number of tracked tasks.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fired)
}
