package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mediajob/encoder"
	"mediajob/job"
	"mediajob/locator"
	"mediajob/logger"
	"mediajob/models"
	"mediajob/utils"
)

const maxJobBody = 1 << 20

// JobErrorResponse is the body of a failed job submission.
type JobErrorResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// verifyJWT checks the bearer token when a secret is configured
func (s *Server) verifyJWT(r *http.Request) (*models.JobClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	return utils.VerifyJobToken(token, utils.VerifyConfig{
		SecretKey:      s.TokenSecret,
		ExpectedIssuer: s.TokenIssuer,
	})
}

// SubmitJobHandler runs a job. By default it blocks until the job finishes
// and returns its result; with ?async=true it answers 202 immediately and the
// outcome is available from /status, /success and /failures.
func (s *Server) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Job request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(s.TokenSecret) > 0 {
		claims, err := s.verifyJWT(r)
		if err != nil {
			logger.Warnf("Rejected job request from %s: %v", r.RemoteAddr, err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		logger.Debugf("Job request authorized for %s", claims.Subject)
	}

	var j models.Job
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobBody))
	if err := dec.Decode(&j); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := job.JobID(j)

	if r.URL.Query().Get("async") == "true" {
		s.submitAsync(w, id, j)
		return
	}

	ctx, cancel := s.jobContext(r.Context())
	defer cancel()

	res, err := s.Jobs.Run(ctx, id, j)
	if err != nil {
		writeJSON(w, statusFor(err), JobErrorResponse{ID: id, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) submitAsync(w http.ResponseWriter, id string, j models.Job) {
	if err := s.Dispatcher.Submit(s.baseContext(), id, j); err != nil {
		writeJSON(w, statusFor(err), JobErrorResponse{ID: id, Error: err.Error()})
		return
	}
	logger.Infof("Accepted background job %s (%s)", id, j.Task)
	writeJSON(w, http.StatusAccepted, JobStatusResponse{ID: id, Task: j.Task, State: job.JobStatePending.String()})
}

func (s *Server) jobContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.JobTimeout > 0 {
		return context.WithTimeout(parent, s.JobTimeout)
	}
	return context.WithCancel(parent)
}

// statusFor maps job errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, job.ErrInvalidJob),
		errors.Is(err, job.ErrUnknownTask),
		errors.Is(err, locator.ErrInvalidLocation),
		errors.Is(err, encoder.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrJobActive):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
