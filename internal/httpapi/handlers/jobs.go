package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"posterforge/internal/httpkit"
)

// JobStatus answers the current record for a job.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	rec, err := h.orch.Status(r.Context(), jobID)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, toJobResponse(rec))
}

// Download streams the finished artifact of a DONE job.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	rc, size, err := h.orch.OpenArtifact(r.Context(), jobID)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+jobID+`.png"`)

	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Warn("artifact download interrupted",
			"job_id", jobID,
			"error", err.Error(),
		)
	}
}
