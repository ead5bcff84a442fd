package routes

import (
	"net/http"

	"mediajob/logger"
)

// SuccessQueryHandler returns the success record of a job
func (s *Server) SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	record, err := s.Successes.Get(id)
	if err != nil {
		logger.Errorf("Failed to query success for %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":      id,
			"status":  "not_found",
			"message": "No success record found for this job",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        record.ID,
		"task":      record.Task,
		"status":    "success",
		"timestamp": record.Timestamp,
		"output":    record.Output,
		"container": record.Container,
		"attempts":  record.Attempts,
		"job_data":  record.JobData,
	})
}

// SuccessListHandler lists all success records (admin endpoint)
func (s *Server) SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.Successes.List()
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
