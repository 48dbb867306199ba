// Package handlers implements the HTTP surface of posterforge.
package handlers

import (
	"posterforge/internal/jobstore"
	"posterforge/internal/orchestrator"
	"posterforge/internal/pkg/logger"
	"posterforge/internal/poster"
	"posterforge/internal/ws"
)

// Deps wires a Handler.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Jobs         jobstore.Store
	Catalog      *poster.Catalog
	CacheDir     string
	Hub          *ws.Hub
	Log          *logger.Logger
}

// Handler holds the dependencies shared by all HTTP endpoints.
type Handler struct {
	orch     *orchestrator.Orchestrator
	jobs     jobstore.Store
	catalog  *poster.Catalog
	cacheDir string
	hub      *ws.Hub
	log      *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		orch:     d.Orchestrator,
		jobs:     d.Jobs,
		catalog:  d.Catalog,
		cacheDir: d.CacheDir,
		hub:      d.Hub,
		log:      log.WithComponent("http"),
	}
}

// jobResponse is the body returned by the job submission and status
// endpoints.
type jobResponse struct {
	JobID   string          `json:"job_id"`
	Status  jobstore.Status `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  string          `json:"result,omitempty"`
}

func toJobResponse(rec jobstore.Record) jobResponse {
	return jobResponse{
		JobID:   rec.JobID,
		Status:  rec.Status,
		Message: rec.Message,
		Result:  rec.Result,
	}
}
