package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"media-ingest/internal/database"
	"media-ingest/internal/logging"
	"media-ingest/internal/pipeline"
)

// GetJob returns the status of a single job by id. In-flight jobs are served
// live; finished jobs come from the durable record.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeJSONError(w, "missing job id", http.StatusBadRequest)
		return
	}

	status, err := h.scheduler.JobStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			writeJSONError(w, "job not found", http.StatusNotFound)
			return
		}
		logging.Error("job lookup %s failed: %v", id, err)
		writeJSONError(w, "job lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, status)
}

// jobListResponse is the envelope for owner job listings.
type jobListResponse struct {
	OwnerID string            `json:"ownerId"`
	Jobs    []pipeline.Status `json:"jobs"`
	Count   int               `json:"count"`
}

// ListJobs returns an owner's jobs, newest first. The owner comes from the
// "owner" query parameter or the X-Owner-ID header.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		ownerID = r.Header.Get(ownerHeader)
	}
	if ownerID == "" {
		writeJSONError(w, "missing owner (use ?owner= or "+ownerHeader+")", http.StatusBadRequest)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := h.scheduler.OwnerJobs(r.Context(), ownerID, limit)
	if err != nil {
		logging.Error("job listing for %s failed: %v", ownerID, err)
		writeJSONError(w, "job listing failed", http.StatusInternalServerError)
		return
	}

	if jobs == nil {
		jobs = []pipeline.Status{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, jobListResponse{OwnerID: ownerID, Jobs: jobs, Count: len(jobs)})
}
