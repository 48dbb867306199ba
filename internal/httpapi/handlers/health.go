package handlers

import (
	"net/http"
	"os"

	"posterforge/internal/httpkit"
	"posterforge/internal/pkg/errors"
)

// Root answers a small service banner so a bare GET / confirms the service
// is up.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"service": "posterforge",
		"status":  "ok",
	})
}

// Health reports liveness and the available themes. With ?deep=true it also
// probes the job store and the artifact cache directory.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "ok",
		"themes": h.catalog.List(),
	}

	if r.URL.Query().Get("deep") != "true" {
		httpkit.WriteJSON(w, http.StatusOK, body)
		return
	}

	checks := map[string]string{
		"jobstore": "ok",
		"cache":    "ok",
	}
	healthy := true

	// A read on a reserved ID exercises the backend end to end; NotFound is
	// the healthy answer.
	if _, err := h.jobs.Read(r.Context(), "health-probe"); err != nil && !errors.IsNotFound(err) {
		checks["jobstore"] = err.Error()
		healthy = false
	}
	if info, err := os.Stat(h.cacheDir); err != nil || !info.IsDir() {
		checks["cache"] = "cache directory unavailable"
		healthy = false
	}

	body["checks"] = checks
	status := http.StatusOK
	if !healthy {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	httpkit.WriteJSON(w, status, body)
}

// Themes lists the available theme presets.
func (h *Handler) Themes(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"themes": h.catalog.List(),
	})
}
