package render

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"posterforge/internal/pkg/errors"
)

// Gate is the single-slot permit bounding concurrent renders to one. The
// external renderer runs on a resource-constrained host and must never be
// invoked concurrently.
//
// Acquire hands out the release capability only when the permit was actually
// obtained; a caller whose acquisition timed out holds nothing it could
// release, so the permit count cannot be corrupted by mismatched releases.
type Gate struct {
	sem  *semaphore.Weighted
	wait time.Duration
}

// NewGate creates a gate whose acquisitions wait at most maxWait.
func NewGate(maxWait time.Duration) *Gate {
	return &Gate{
		sem:  semaphore.NewWeighted(1),
		wait: maxWait,
	}
}

// Acquire obtains the render slot, waiting up to the gate's bound (and no
// longer than ctx allows). On success it returns an idempotent release
// function. On timeout it returns a GATE_BUSY error and the permit count is
// untouched.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.wait)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeGateBusy, "render.gate", "render slot busy")
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.sem.Release(1) })
	}, nil
}
