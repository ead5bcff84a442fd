// Package job turns a task invocation into downloads, one encoder run and an
// upload. Every job runs in its own temporary workspace that is removed on
// every exit path.
package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"mediajob/encoder"
	"mediajob/failures"
	"mediajob/locator"
	"mediajob/logger"
	"mediajob/metrics"
	"mediajob/models"
	"mediajob/storage"
	"mediajob/success"

	"github.com/google/uuid"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrInvalidJob  = errors.New("invalid job parameters")
	// ErrAssetMissing wraps any failure to fetch an input asset.
	ErrAssetMissing = errors.New("asset download failed")
	ErrUpload       = errors.New("upload failed")
)

// Storage is what the handler needs from the storage layer.
type Storage interface {
	storage.Backend
	DownloadURI(ctx context.Context, obj locator.Object, localPath string) error
	UploadURI(ctx context.Context, localPath string, obj locator.Object) error
}

// Handler runs jobs. All fields are set once at startup and shared by
// concurrent jobs; nothing here is mutated per job except the tracker.
type Handler struct {
	Storage  Storage
	Executor *encoder.Executor

	DefaultBucket       string
	DefaultBucketPrefix string
	// WorkDir is the parent of per-job workspaces; empty means os.TempDir.
	WorkDir string

	Tracker   *Tracker
	Failures  *failures.Store
	Successes *success.Store
}

// outcome carries what the task functions report back for bookkeeping.
type outcome struct {
	output    string
	container string
	attempts  int
}

// JobID returns the id a job will run under. DOWNSAMPLING jobs without an
// id get a fresh one; ENCODING jobs must name theirs.
func JobID(j models.Job) string {
	id := models.Params(j.Parameters).String("id", "")
	if id == "" && j.Task == models.TaskDownsampling {
		id = uuid.NewString()
	}
	return id
}

// Handle runs j under JobID(j).
func (h *Handler) Handle(ctx context.Context, j models.Job) (models.Result, error) {
	return h.Run(ctx, JobID(j), j)
}

// Run executes j synchronously under id and records its outcome.
func (h *Handler) Run(ctx context.Context, id string, j models.Job) (models.Result, error) {
	if id == "" {
		return models.Result{}, fmt.Errorf("%w: id is required", ErrInvalidJob)
	}
	if err := ctx.Err(); err != nil {
		// cancelled while pending
		if h.Tracker != nil {
			h.Tracker.End(id, err, err)
		}
		return models.Result{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if h.Tracker != nil {
		if err := h.Tracker.Begin(id, j.Task, cancel); err != nil {
			return models.Result{}, err
		}
	}

	metrics.ActiveJobs.Inc()
	start := time.Now()
	logger.Infof("job %s: starting %s", id, j.Task)

	params := models.Params(j.Parameters)
	var (
		res models.Result
		out outcome
		err error
	)
	switch j.Task {
	case models.TaskEncoding:
		res, out, err = h.encode(ctx, id, params)
	case models.TaskDownsampling:
		res, out, err = h.downsample(ctx, id, params)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownTask, j.Task)
	}

	metrics.ActiveJobs.Dec()
	metrics.JobDuration.WithLabelValues(taskLabel(j.Task)).Observe(time.Since(start).Seconds())
	if h.Tracker != nil {
		h.Tracker.End(id, ctx.Err(), err)
	}

	if err != nil {
		metrics.JobsTotal.WithLabelValues(taskLabel(j.Task), "failed").Inc()
		logger.Errorf("job %s: %v", id, err)
		h.storeFailure(id, j, err)
		return models.Result{}, err
	}

	metrics.JobsTotal.WithLabelValues(taskLabel(j.Task), "succeeded").Inc()
	logger.Infof("job %s: %s in %s", id, res.Body, time.Since(start).Round(time.Millisecond))
	h.storeSuccess(id, j, out)
	return res, nil
}

// taskLabel keeps arbitrary task strings out of metric labels.
func taskLabel(task string) string {
	if task == models.TaskEncoding || task == models.TaskDownsampling {
		return task
	}
	return "unknown"
}

// workspace creates the scoped temp dir for one job.
func (h *Handler) workspace(id string) (string, func(), error) {
	dir, err := os.MkdirTemp(h.WorkDir, "mediajob-"+id+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("create workspace: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Errorf("Failed to cleanup workspace %s: %v", dir, err)
		}
	}, nil
}

// storeFailure records err; store errors are logged, never returned
func (h *Handler) storeFailure(id string, j models.Job, err error) {
	if h.Failures == nil {
		return
	}
	exitCode := 0
	var encErr *encoder.EncodeError
	if errors.As(err, &encErr) {
		exitCode = encErr.ExitCode
	}
	if storeErr := h.Failures.Record(id, j.Task, exitCode, err, j.Parameters); storeErr != nil {
		logger.Errorf("Failed to store failure for %s: %v", id, storeErr)
	}
	// a rerun that failed supersedes an earlier success
	if h.Successes != nil {
		if delErr := h.Successes.Delete(id); delErr != nil {
			logger.Errorf("Failed to clear stale success record for %s: %v", id, delErr)
		}
	}
}

func (h *Handler) storeSuccess(id string, j models.Job, out outcome) {
	if h.Successes == nil {
		return
	}
	rec := success.SuccessRecord{
		ID:        id,
		Task:      j.Task,
		Output:    out.output,
		Container: out.container,
		Attempts:  out.attempts,
	}
	if err := h.Successes.Record(rec, j.Parameters); err != nil {
		logger.Errorf("Failed to store success record for %s: %v", id, err)
	}
	if h.Failures != nil {
		if err := h.Failures.Delete(id); err != nil {
			logger.Errorf("Failed to clear stale failure record for %s: %v", id, err)
		}
	}
}
