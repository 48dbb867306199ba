// Package orchestrator coordinates poster jobs: cache-first submission,
// one background worker per job, and a single render slot shared by all
// workers.
package orchestrator

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"posterforge/internal/artifact"
	"posterforge/internal/jobstore"
	"posterforge/internal/pkg/errors"
	"posterforge/internal/pkg/logger"
	"posterforge/internal/poster"
	"posterforge/internal/render"
)

// maxMessage bounds the diagnostic message stored on a job record.
const maxMessage = 2000

// RenderInvoker runs one render and leaves the produced artifact at the
// destination path.
type RenderInvoker interface {
	Invoke(ctx context.Context, p poster.Params, destPath string) (string, error)
}

// Notifier observes job transitions. The websocket hub implements it.
type Notifier interface {
	JobUpdated(rec jobstore.Record)
}

type noopNotifier struct{}

func (noopNotifier) JobUpdated(jobstore.Record) {}

// Deps wires an Orchestrator.
type Deps struct {
	Jobs     jobstore.Store
	Cache    *artifact.Cache
	Catalog  *poster.Catalog
	Invoker  RenderInvoker
	Gate     *render.Gate
	Notifier Notifier
	Log      *logger.Logger
}

type Orchestrator struct {
	jobs     jobstore.Store
	cache    *artifact.Cache
	catalog  *poster.Catalog
	invoker  RenderInvoker
	gate     *render.Gate
	notifier Notifier
	log      *logger.Logger

	workers sync.WaitGroup
}

func New(d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Orchestrator{
		jobs:     d.Jobs,
		cache:    d.Cache,
		catalog:  d.Catalog,
		invoker:  d.Invoker,
		gate:     d.Gate,
		notifier: notifier,
		log:      log.WithComponent("orchestrator"),
	}
}

// Submit validates the theme, then either answers DONE straight from the
// cache or creates a PENDING job and dispatches a background worker. It
// never blocks on rendering.
func (o *Orchestrator) Submit(ctx context.Context, p poster.Params) (jobstore.Record, error) {
	p = p.Normalized()
	if !o.catalog.Has(p.Theme) {
		return jobstore.Record{}, errors.InvalidTheme(p.Theme, o.catalog.List())
	}

	key := poster.Fingerprint(p)
	jobID := newJobID()
	log := o.log.FromContext(ctx).WithJobID(jobID)

	if o.cache.Has(key) {
		rec := jobstore.Record{
			JobID:     jobID,
			Status:    jobstore.StatusDone,
			CreatedAt: time.Now().UTC(),
			CacheKey:  key,
			Message:   "Served from cache",
			Result:    "/download/" + jobID,
		}
		if err := o.jobs.Create(ctx, jobID, rec); err != nil {
			return jobstore.Record{}, errors.Wrap(err, "orchestrator.submit", "create job record")
		}
		o.notifier.JobUpdated(rec)
		log.Info("job served from cache", "cache_key", key)
		return rec, nil
	}

	rec := jobstore.Record{
		JobID:     jobID,
		Status:    jobstore.StatusPending,
		CreatedAt: time.Now().UTC(),
		CacheKey:  key,
		Message:   "Queued",
	}
	if err := o.jobs.Create(ctx, jobID, rec); err != nil {
		return jobstore.Record{}, errors.Wrap(err, "orchestrator.submit", "create job record")
	}
	o.notifier.JobUpdated(rec)

	o.workers.Add(1)
	go o.run(rec, p)

	log.Info("job queued", "cache_key", key)
	return rec, nil
}

// run is the background worker for one job. Every failure ends up on the
// record; nothing escapes.
func (o *Orchestrator) run(rec jobstore.Record, p poster.Params) {
	defer o.workers.Done()

	// Detached from the submitting request on purpose: the job outlives it.
	ctx := logger.ContextWithJobID(context.Background(), rec.JobID)
	log := o.log.WithJobID(rec.JobID)
	start := time.Now()

	release, err := o.gate.Acquire(ctx)
	if err != nil {
		// Timed-out acquisition holds no permit, so there is nothing to
		// release here; proceeding anyway would break the single-slot bound.
		o.fail(ctx, rec, err)
		return
	}
	defer release()

	o.transition(ctx, &rec, jobstore.StatusRunning, "Generating...", "")

	// Another worker may have rendered the same fingerprint while this one
	// waited on the gate.
	if o.cache.Has(rec.CacheKey) {
		o.transition(ctx, &rec, jobstore.StatusDone, "Served from cache", "/download/"+rec.JobID)
		log.Info("job served from cache after gate wait", "duration_ms", time.Since(start).Milliseconds())
		return
	}

	stage := o.cache.Path(rec.CacheKey) + ".part"
	if _, err := o.invoker.Invoke(ctx, p, stage); err != nil {
		o.fail(ctx, rec, err)
		log.Error("job failed",
			"code", string(errors.GetCode(err)),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	if err := o.cache.Put(rec.CacheKey, stage); err != nil {
		o.fail(ctx, rec, err)
		return
	}

	o.transition(ctx, &rec, jobstore.StatusDone, "Done", "/download/"+rec.JobID)
	log.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
}

// RenderSync is the blocking surface: no job record, the artifact path (or
// the failure) goes straight back to the caller.
func (o *Orchestrator) RenderSync(ctx context.Context, p poster.Params) (string, error) {
	p = p.Normalized()
	if !o.catalog.Has(p.Theme) {
		return "", errors.InvalidTheme(p.Theme, o.catalog.List())
	}

	key := poster.Fingerprint(p)
	if path, err := o.cache.Get(key); err == nil {
		return path, nil
	}

	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if path, err := o.cache.Get(key); err == nil {
		return path, nil
	}

	stage := o.cache.Path(key) + ".part"
	if _, err := o.invoker.Invoke(ctx, p, stage); err != nil {
		return "", err
	}
	if err := o.cache.Put(key, stage); err != nil {
		return "", err
	}
	return o.cache.Get(key)
}

// Status reads the current job record.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (jobstore.Record, error) {
	return o.jobs.Read(ctx, jobID)
}

// Artifact resolves a job to its cached artifact path. Only DONE jobs have
// one; the defensive branches cover a DONE record whose cache entry is gone.
func (o *Orchestrator) Artifact(ctx context.Context, jobID string) (string, error) {
	key, err := o.artifactKey(ctx, jobID)
	if err != nil {
		return "", err
	}
	return o.cache.Get(key)
}

// OpenArtifact streams a DONE job's artifact for download.
func (o *Orchestrator) OpenArtifact(ctx context.Context, jobID string) (io.ReadCloser, int64, error) {
	key, err := o.artifactKey(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	return o.cache.Open(key)
}

func (o *Orchestrator) artifactKey(ctx context.Context, jobID string) (string, error) {
	rec, err := o.jobs.Read(ctx, jobID)
	if err != nil {
		return "", err
	}
	if rec.Status != jobstore.StatusDone {
		return "", errors.New(errors.CodeJobNotReady, "job not completed").
			WithField("status", string(rec.Status))
	}
	if rec.CacheKey == "" {
		return "", errors.New(errors.CodeMissingCacheKey, "job record has no cache key")
	}
	return rec.CacheKey, nil
}

// Shutdown waits for in-flight workers, bounded by ctx. Submitted jobs run
// to completion; there is no mid-flight cancellation.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) transition(ctx context.Context, rec *jobstore.Record, status jobstore.Status, message, result string) {
	rec.Status = status
	rec.Message = message
	rec.Result = result
	if err := o.jobs.Overwrite(ctx, rec.JobID, *rec); err != nil {
		o.log.WithJobID(rec.JobID).Error("failed to persist job transition",
			"status", string(status),
			"error", err.Error(),
		)
		return
	}
	o.notifier.JobUpdated(*rec)
}

func (o *Orchestrator) fail(ctx context.Context, rec jobstore.Record, cause error) {
	msg := "Unexpected error"
	if cause != nil {
		var e *errors.Error
		if errors.As(cause, &e) && e.Message != "" {
			msg = e.Message
		} else {
			msg = cause.Error()
		}
	}
	if len(msg) > maxMessage {
		msg = msg[:maxMessage]
	}
	o.transition(ctx, &rec, jobstore.StatusError, msg, "")
}

// newJobID returns a short random token, unique enough that collisions are
// not a practical concern for job identifiers.
func newJobID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}
