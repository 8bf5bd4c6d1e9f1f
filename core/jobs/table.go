// Package jobs tracks background processes and reports their completion.
package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/josephlewis42/msh/core/proc"
)

var (
	// ErrTableFull is returned by Insert when a bounded table has no room.
	ErrTableFull = errors.New("job table full")
	// ErrDuplicate is returned by Insert for an identity that's already tracked.
	ErrDuplicate = errors.New("process already tracked")
)

// State is the lifecycle state of a Job.
type State int

const (
	// Running jobs have been started and not yet reaped.
	Running State = iota
	// Done jobs have been reaped.
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Job is a tracked background process.
type Job struct {
	ID      int
	Process proc.Identity
	Command string
	State   State
	Started time.Time
}

// Table maps process identities to jobs.
//
// Insert is called by the scheduler right after a background spawn and
// MarkDone by the reaper; nothing else mutates a Table.
type Table struct {
	mu       sync.RWMutex
	capacity int
	lastID   int
	jobs     map[proc.Identity]*Job

	now func() time.Time
}

// NewTable creates a table holding at most capacity jobs, or any number if
// capacity is 0.
func NewTable(capacity int) *Table {
	if capacity < 0 {
		capacity = 0
	}
	return &Table{
		capacity: capacity,
		jobs:     make(map[proc.Identity]*Job),
		now:      time.Now,
	}
}

// Insert starts tracking a running process and returns its job. Job IDs
// are only consumed by successful inserts.
func (t *Table) Insert(id proc.Identity, command string) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[id]; ok {
		return Job{}, fmt.Errorf("%w: %v", ErrDuplicate, id)
	}
	if t.capacity > 0 && len(t.jobs) >= t.capacity {
		return Job{}, ErrTableFull
	}

	t.lastID++
	job := &Job{
		ID:      t.lastID,
		Process: id,
		Command: command,
		State:   Running,
		Started: t.now(),
	}
	t.jobs[id] = job

	return *job, nil
}

// Find looks up the job for a process.
func (t *Table) Find(id proc.Identity) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// MarkDone retires the job for a process and returns it in the Done state.
// It reports false if the process isn't tracked, e.g. because it ran in
// the foreground.
func (t *Table) MarkDone(id proc.Identity) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	delete(t.jobs, id)

	job.State = Done
	return *job, true
}

// List returns the tracked jobs ordered by ID.
func (t *Table) List() []Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of tracked jobs.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

// Capacity returns the maximum number of jobs, 0 if unbounded.
func (t *Table) Capacity() int {
	return t.capacity
}
