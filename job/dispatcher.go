package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mediajob/logger"
	"mediajob/models"
	taskqueue "mediajob/taskQueue"
)

// Queue persists accepted background jobs until they finish.
type Queue interface {
	Add(id string, j models.Job) error
	Remove(id string) error
	Pending() ([]taskqueue.Entry, error)
}

// Dispatcher runs background jobs with bounded concurrency. Jobs waiting
// for a slot stay pending in the tracker.
type Dispatcher struct {
	handler *Handler
	queue   Queue
	slots   chan struct{}
	timeout time.Duration
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool // ids whose run has not yet released the queue entry
}

// NewDispatcher returns a dispatcher running at most workers jobs at once.
// queue may be nil, in which case accepted jobs are lost on restart.
func NewDispatcher(h *Handler, queue Queue, workers int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		handler: h,
		queue:   queue,
		slots:    make(chan struct{}, workers),
		timeout:  timeout,
		inflight: make(map[string]bool),
	}
}

// Submit accepts j for background execution under id. parent bounds the
// job's lifetime; cancelling it (shutdown) leaves the job queued.
func (d *Dispatcher) Submit(parent context.Context, id string, j models.Job) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidJob)
	}
	return d.enqueue(parent, id, j, true)
}

// Resume restarts every job left in the queue by a previous process.
func (d *Dispatcher) Resume(parent context.Context) (int, error) {
	if d.queue == nil {
		return 0, nil
	}
	entries, err := d.queue.Pending()
	if err != nil {
		return 0, fmt.Errorf("read task queue: %w", err)
	}
	n := 0
	for _, e := range entries {
		if err := d.enqueue(parent, e.ID, e.Job, false); err != nil {
			logger.Errorf("Failed to resume job %s: %v", e.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

// Wait blocks until every started background job has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(parent context.Context, id string, j models.Job, persist bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[id] {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}

	ctx, cancel := context.WithCancel(parent)
	if tr := d.handler.Tracker; tr != nil {
		if err := tr.Submit(id, j.Task, cancel); err != nil {
			cancel()
			return err
		}
	}
	if persist && d.queue != nil {
		if err := d.queue.Add(id, j); err != nil {
			cancel()
			if tr := d.handler.Tracker; tr != nil {
				tr.End(id, nil, err)
			}
			return fmt.Errorf("queue job %s: %w", id, err)
		}
	}
	d.inflight[id] = true

	d.wg.Add(1)
	go d.run(parent, ctx, cancel, id, j)
	return nil
}

func (d *Dispatcher) run(parent, ctx context.Context, cancel context.CancelFunc, id string, j models.Job) {
	defer d.wg.Done()
	defer cancel()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, id)
		d.mu.Unlock()
	}()

	select {
	case d.slots <- struct{}{}:
		defer func() { <-d.slots }()
	case <-ctx.Done():
	}

	runCtx := ctx
	if d.timeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(ctx, d.timeout)
		defer stop()
	}

	if _, err := d.handler.Run(runCtx, id, j); err != nil {
		logger.Errorf("Background job %s failed: %v", id, err)
		if errors.Is(err, ErrJobActive) && d.handler.Tracker != nil {
			// cancelled between its ctx check and Begin; the entry is still ours
			d.handler.Tracker.End(id, ctx.Err(), err)
		}
	}

	if parent.Err() != nil {
		logger.Infof("job %s: interrupted by shutdown, left in queue", id)
		return
	}
	if d.queue != nil {
		if err := d.queue.Remove(id); err != nil {
			logger.Errorf("Failed to remove job %s from queue: %v", id, err)
		}
	}
}
