package main

import (
	"context"
	"fmt"
	"time"

	"mediajob/config"
	"mediajob/encoder"
	"mediajob/failures"
	"mediajob/filtergraph"
	"mediajob/job"
	"mediajob/logger"
	"mediajob/storage"
	"mediajob/success"
	taskqueue "mediajob/taskQueue"
)

// app owns the process-wide components built from configuration.
type app struct {
	cfg       *config.Config
	storage   *storage.Router
	failures  *failures.Store
	successes *success.Store
	queue     *taskqueue.Queue
	tracker   *job.Tracker
	handler   *job.Handler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, tracker: job.NewTracker()}

	logger.Debug("Initializing failures database")
	fs, err := failures.Open(config.GetFailuresDBPath())
	if err != nil {
		return nil, err
	}
	a.failures = fs
	logger.Info("Failures database initialized successfully")

	logger.Debug("Initializing success database")
	ss, err := success.Open(config.GetSuccessDBPath())
	if err != nil {
		a.close()
		return nil, err
	}
	a.successes = ss
	logger.Info("Success database initialized successfully")

	q, err := taskqueue.Open(config.GetQueueDBPath())
	if err != nil {
		a.close()
		return nil, err
	}
	a.queue = q

	router, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.storage = router

	binary := cfg.FFmpegPath
	if resolved, err := encoder.CheckBinary(cfg.FFmpegPath); err == nil {
		binary = resolved
	}
	verbose := logger.ParseLevel(cfg.LogLevel) == logger.DEBUG
	exec := encoder.NewExecutor(binary, filtergraph.DefaultAssets(cfg.AssetsDir), verbose)

	a.handler = &job.Handler{
		Storage:             router,
		Executor:            exec,
		DefaultBucket:       cfg.DefaultBucket,
		DefaultBucketPrefix: cfg.DefaultBucketPrefix,
		Tracker:             a.tracker,
		Failures:            a.failures,
		Successes:           a.successes,
	}
	return a, nil
}

// dispatcher returns the background runner backed by the persistent queue.
func (a *app) dispatcher() *job.Dispatcher {
	return job.NewDispatcher(a.handler, a.queue, a.cfg.MaxAsyncJobs, a.cfg.JobTimeout)
}

func (a *app) close() {
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			logger.Errorf("Failed to close storage: %v", err)
		}
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			logger.Errorf("Failed to close task queue: %v", err)
		}
	}
	if err := a.successes.Close(); err != nil {
		logger.Errorf("Failed to close success store: %v", err)
	}
	if err := a.failures.Close(); err != nil {
		logger.Errorf("Failed to close failure store: %v", err)
	}
}

// cleanupRoutine periodically removes old success and failure records
func (a *app) cleanupRoutine(ctx context.Context, interval time.Duration) {
	logger.Infof("Cleanup routine started - will run every %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			a.cleanup()
		}
	}
}

func (a *app) cleanup() {
	maxAge := a.cfg.RecordRetention
	logger.Infof("Running scheduled cleanup of records older than %v", maxAge)

	if n, err := a.successes.CleanupOldRecords(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old success records: %v", err)
	} else {
		logger.Infof("Removed %d old success records", n)
	}

	if n, err := a.failures.CleanupOldRecords(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old failure records: %v", err)
	} else {
		logger.Infof("Removed %d old failure records", n)
	}

	if n := a.tracker.Prune(maxAge); n > 0 {
		logger.Debugf("Forgot %d finished jobs", n)
	}
}
