package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mediajob/failures"
	"mediajob/job"
	"mediajob/logger"
	"mediajob/success"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server bundles the dependencies shared by the HTTP handlers.
type Server struct {
	Jobs       *job.Handler
	Dispatcher *job.Dispatcher
	Tracker    *job.Tracker
	Failures   *failures.Store
	Successes  *success.Store

	// TokenSecret enables bearer-token checks on POST /jobs when set.
	TokenSecret []byte
	TokenIssuer string
	// JobTimeout bounds a synchronous job; zero means no deadline.
	JobTimeout time.Duration

	// ctx is the parent of background jobs; cancelled on shutdown.
	ctx context.Context
}

// NewServer returns a Server whose background jobs live under ctx. The
// default dispatcher runs one background job at a time and does not persist.
func NewServer(ctx context.Context, h *job.Handler) *Server {
	return &Server{
		Jobs:       h,
		Dispatcher: job.NewDispatcher(h, nil, 1, 0),
		Tracker:    h.Tracker,
		Failures:   h.Failures,
		Successes:  h.Successes,
		ctx:        ctx,
	}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", s.SubmitJobHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/version", VersionHandler)
	mux.HandleFunc("/status", s.JobStatusHandler)
	mux.HandleFunc("/cancel", s.CancelJobHandler)
	mux.HandleFunc("/failures", s.FailureQueryHandler)
	mux.HandleFunc("/failures/list", s.FailureListHandler)
	mux.HandleFunc("/success", s.SuccessQueryHandler)
	mux.HandleFunc("/success/list", s.SuccessListHandler)
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("HTTP routes registered successfully")
	return mux
}

func (s *Server) baseContext() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}
