// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EncodeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediajob_encode_attempts_total",
		Help: "Encoder invocations by output container",
	}, []string{"container"})

	EncodeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediajob_encode_fallbacks_total",
		Help: "Encodes retried with the fallback container after exit code 1",
	})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediajob_jobs_total",
		Help: "Finished jobs by task and outcome",
	}, []string{"task", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediajob_job_duration_seconds",
		Help:    "Wall-clock time of a job from download to upload",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	}, []string{"task"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediajob_active_jobs",
		Help: "Jobs currently running in this process",
	})
)
