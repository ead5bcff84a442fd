package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// JobState represents the current state of a job
type JobState int

const (
	JobStatePending JobState = iota
	JobStateProcessing
	JobStateCompleted
	JobStateFailed
	JobStateCancelled
)

func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "pending"
	case JobStateProcessing:
		return "processing"
	case JobStateCompleted:
		return "completed"
	case JobStateFailed:
		return "failed"
	case JobStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobActive rejects a second run of an id whose current run has not ended.
	ErrJobActive = errors.New("job is already active")
)

// Status is the tracked view of one job.
type Status struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	state  JobState
	cancel context.CancelFunc
	ended  bool // End ran for the current run
}

// active reports whether a run still owns the id. A cancelled job stays
// active until its run returns and calls End.
func (st *Status) active() bool {
	switch st.state {
	case JobStatePending, JobStateProcessing:
		return true
	case JobStateCancelled:
		return !st.ended
	}
	return false
}

// Tracker holds in-memory job states for the lifetime of the process.
// Persistent outcomes live in the failures and success stores.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Status
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Status)}
}

func (t *Tracker) set(st *Status, state JobState) {
	st.state = state
	st.State = state.String()
	st.UpdatedAt = time.Now()
}

// Submit marks id as pending. cancel aborts the job before or while it runs.
func (t *Tracker) Submit(id, task string, cancel context.CancelFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.jobs[id]; ok && st.active() {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	st := &Status{ID: id, Task: task, cancel: cancel}
	t.set(st, JobStatePending)
	t.jobs[id] = st
	return nil
}

// Begin moves id to processing, submitting it first when it was not pending.
func (t *Tracker) Begin(id, task string, cancel context.CancelFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.jobs[id]
	switch {
	case ok && st.state == JobStatePending:
		if cancel != nil {
			st.cancel = cancel
		}
	case ok && st.active():
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	default:
		st = &Status{ID: id, Task: task, cancel: cancel}
		t.jobs[id] = st
	}
	st.Error = ""
	t.set(st, JobStateProcessing)
	return nil
}

// End records the outcome of id. A cancelled context wins over the error text.
func (t *Tracker) End(id string, ctxErr, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.jobs[id]
	if !ok {
		return
	}
	st.cancel = nil
	st.ended = true
	switch {
	case err == nil:
		st.Error = ""
		t.set(st, JobStateCompleted)
	case errors.Is(ctxErr, context.Canceled):
		st.Error = err.Error()
		t.set(st, JobStateCancelled)
	default:
		st.Error = err.Error()
		t.set(st, JobStateFailed)
	}
}

// Get returns a copy of the tracked status of id.
func (t *Tracker) Get(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.jobs[id]
	if !ok {
		return Status{}, false
	}
	cp := *st
	cp.cancel = nil
	return cp, true
}

// Active returns the ids of pending and processing jobs.
func (t *Tracker) Active() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []string
	for id, st := range t.jobs {
		if st.state == JobStatePending || st.state == JobStateProcessing {
			ids = append(ids, id)
		}
	}
	return ids
}

// Cancel aborts a pending or processing job. The encoder subprocess is
// killed through its context and the job ends as cancelled.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, exists := t.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	switch st.state {
	case JobStateCompleted:
		return fmt.Errorf("job %s is already completed", id)
	case JobStateFailed:
		return fmt.Errorf("job %s has already failed", id)
	case JobStateCancelled:
		return fmt.Errorf("job %s is already cancelled", id)
	case JobStatePending, JobStateProcessing:
		if st.cancel == nil {
			return fmt.Errorf("job %s is active but not cancellable", id)
		}
		st.cancel()
		st.cancel = nil
		t.set(st, JobStateCancelled)
		return nil
	default:
		return fmt.Errorf("job %s is in unknown state", id)
	}
}

// Prune forgets finished jobs last updated before maxAge ago.
func (t *Tracker) Prune(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	n := 0
	for id, st := range t.jobs {
		if st.active() {
			continue
		}
		if st.UpdatedAt.Before(cutoff) {
			delete(t.jobs, id)
			n++
		}
	}
	return n
}
