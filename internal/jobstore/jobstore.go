// Package jobstore persists job records. A record is small and every state
// transition rewrites it whole; backends must never expose a half-written
// record to a concurrent reader.
package jobstore

import (
	"context"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusError   Status = "ERROR"
)

// Terminal reports whether a status is final. Terminal records never change
// again, which is what allows the fs backend to memoize them.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Record is one job's full state. CacheKey is the request fingerprint;
// Result, when set, is the download reference for the cached artifact.
type Record struct {
	JobID     string    `json:"job_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	CacheKey  string    `json:"cache_key"`
	Message   string    `json:"message,omitempty"`
	Result    string    `json:"result,omitempty"`
}

// Store is the durable job-record mapping.
//
// Create fails with an ALREADY_EXISTS coded error when the id is taken;
// Read fails with NOT_FOUND for unknown ids. Overwrite replaces the full
// record atomically with respect to concurrent readers.
type Store interface {
	Create(ctx context.Context, id string, rec Record) error
	Overwrite(ctx context.Context, id string, rec Record) error
	Read(ctx context.Context, id string) (Record, error)
}
