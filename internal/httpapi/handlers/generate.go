package handlers

import (
	"net/http"
	"os"

	"posterforge/internal/httpkit"
	"posterforge/internal/pkg/errors"
	"posterforge/internal/poster"
)

// defaultDistance applies when a request omits the distance field.
const defaultDistance = 2000

type generateRequest struct {
	City     string `json:"city"`
	Country  string `json:"country"`
	Theme    string `json:"theme"`
	Distance int    `json:"distance"`
}

func (req generateRequest) params() poster.Params {
	distance := req.Distance
	if distance == 0 {
		distance = defaultDistance
	}
	return poster.Params{
		City:     req.City,
		Country:  req.Country,
		Theme:    req.Theme,
		Distance: distance,
	}
}

// GenerateAsync queues a render job (or answers straight from the cache)
// and returns the job record without waiting for the render.
func (h *Handler) GenerateAsync(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteError(w, errors.Validation("invalid request body"))
		return
	}

	p := req.params()
	if err := p.Validate(poster.MaxDistanceAsync); err != nil {
		httpkit.WriteError(w, err)
		return
	}

	rec, err := h.orch.Submit(r.Context(), p)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	status := http.StatusAccepted
	if rec.Status.Terminal() {
		status = http.StatusOK
	}
	httpkit.WriteJSON(w, status, toJobResponse(rec))
}

// Generate renders synchronously and streams the finished poster back in
// the response. Larger posters are allowed here than on the async surface.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteError(w, errors.Validation("invalid request body"))
		return
	}

	p := req.params()
	if err := p.Validate(poster.MaxDistanceSync); err != nil {
		httpkit.WriteError(w, err)
		return
	}

	path, err := h.orch.RenderSync(r.Context(), p)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		httpkit.WriteError(w, errors.Wrap(err, "handlers.generate", "open rendered poster"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		httpkit.WriteError(w, errors.Wrap(err, "handlers.generate", "stat rendered poster"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, "poster.png", info.ModTime(), f)
}
