package routes

import (
	"fmt"
	"net/http"

	"mediajob/logger"
)

// JobStatusResponse represents the job status response
type JobStatusResponse struct {
	ID    string `json:"id"`
	Task  string `json:"task,omitempty"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// JobStatusHandler returns the tracked state of a job by id
func (s *Server) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Job status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		logger.Warnf("Invalid method for status endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		logger.Warn("Missing id parameter in status request")
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	st, exists := s.Tracker.Get(id)
	if !exists {
		logger.Warnf("Job not found: %s", id)
		http.Error(w, fmt.Sprintf("Job %s not found", id), http.StatusNotFound)
		return
	}

	logger.Debugf("Job status: id=%s, state=%s", id, st.State)
	writeJSON(w, http.StatusOK, JobStatusResponse{
		ID:    st.ID,
		Task:  st.Task,
		State: st.State,
		Error: st.Error,
	})
}
