// Package httpapi assembles the posterforge HTTP router.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"posterforge/internal/httpapi/handlers"
	"posterforge/internal/httpkit"
	"posterforge/internal/pkg/errors"
	"posterforge/internal/pkg/logger"
	"posterforge/internal/pkg/middleware"
)

// Config carries router-level options.
type Config struct {
	AllowedOrigins []string
}

// NewRouter builds the full middleware chain and route table.
func NewRouter(h *handlers.Handler, log *logger.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Content-Disposition"},
	}))

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/themes", h.Themes)

	r.Post("/generate", h.Generate)
	r.Post("/generate_async", h.GenerateAsync)
	r.Get("/job/{jobID}", h.JobStatus)
	r.Get("/download/{jobID}", h.Download)

	r.Get("/ws", h.WebSocket)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpkit.WriteError(w, errors.NotFound("route", req.URL.Path))
	})

	return r
}
