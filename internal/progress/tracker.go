// Package progress provides the concurrent-safe status table that
// drives the live display during a batch run. Many writers (one per
// executing task) update it; one periodic reader snapshots it.
package progress

import (
	"sort"
	"sync"
	"time"
)

// Status is a task's execution state within a round.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusMerging   Status = "merging"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one task's row in the status table.
type Entry struct {
	TaskID  string
	Title   string
	Status  Status
	Started time.Time
	Ended   time.Time
	Bytes   int64
	LogPath string
	Err     error
}

// Elapsed returns how long the task has been (or was) running.
func (e Entry) Elapsed() time.Duration {
	if e.Started.IsZero() {
		return 0
	}
	if e.Ended.IsZero() {
		return time.Since(e.Started)
	}
	return e.Ended.Sub(e.Started)
}

// Tracker is a concurrent-safe status table keyed by task id.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*Entry)}
}

// Add registers a task as pending. Insertion order is preserved in
// snapshots.
func (t *Tracker) Add(taskID, title, logPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[taskID]; !ok {
		t.order = append(t.order, taskID)
	}
	t.entries[taskID] = &Entry{
		TaskID:  taskID,
		Title:   title,
		Status:  StatusPending,
		LogPath: logPath,
	}
}

// SetStatus transitions a task to the given status, stamping start and
// end times as appropriate.
func (t *Tracker) SetStatus(taskID string, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[taskID]
	if !ok {
		return
	}
	e.Status = status
	switch status {
	case StatusRunning:
		if e.Started.IsZero() {
			e.Started = time.Now()
		}
	case StatusCompleted, StatusFailed:
		if e.Ended.IsZero() {
			e.Ended = time.Now()
		}
	}
}

// SetError records a task's failure cause.
func (t *Tracker) SetError(taskID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[taskID]; ok {
		e.Err = err
	}
}

// AddBytes accumulates streamed output size for a task.
func (t *Tracker) AddBytes(taskID string, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[taskID]; ok {
		e.Bytes += n
	}
}

// Snapshot returns a copy of all entries in insertion order. Safe to
// call while writers are active.
func (t *Tracker) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.entries[id])
	}
	return out
}

// Counts returns how many entries are in each status.
func (t *Tracker) Counts() map[Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[Status]int)
	for _, e := range t.entries {
		counts[e.Status]++
	}
	return counts
}

// Reset clears the table for a new round.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*Entry)
	t.order = nil
}

// SortedByID returns a snapshot sorted by task id, for stable test
// output.
func (t *Tracker) SortedByID() []Entry {
	snap := t.Snapshot()
	sort.Slice(snap, func(i, j int) bool { return snap[i].TaskID < snap[j].TaskID })
	return snap
}
