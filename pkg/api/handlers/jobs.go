package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/worker"
)

// JobsHandler exposes background job records.
type JobsHandler struct {
	worker worker.Worker
}

// NewJobsHandler creates a new jobs handler. A nil worker disables the
// endpoints; lookups then report not found.
func NewJobsHandler(w worker.Worker) *JobsHandler {
	return &JobsHandler{worker: w}
}

// Get handles GET /jobs/{id} - the full job record, including the
// result map and captured error of finished jobs.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		writeError(w, apperror.NotFound(chi.URLParam(r, "id")))
		return
	}
	job, err := h.worker.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(job))
}
