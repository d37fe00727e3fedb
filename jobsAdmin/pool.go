package jobsAdmin

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool is a named worker pool jobs are submitted to. Grounded on the
// teacher's concurrency-tuning layer (ste/mgr-JobPartMgr.go,
// common/concurrency.go), reworked from a tuned HTTP-transfer concurrency
// value into a fixed-size execution slot count per §5 "job execution occurs
// on one or more named executor pools".
type Pool interface {
	// Submit runs task on a pool goroutine once a slot is available,
	// blocking the caller until one frees up or ctx is cancelled.
	Submit(ctx context.Context, task func()) error
	Size() int64
}

// semaphorePool bounds concurrency with golang.org/x/sync/semaphore rather
// than a hand-rolled counting channel, the way the teacher reaches for
// golang.org/x/sync primitives elsewhere in its concurrency-tuning code.
type semaphorePool struct {
	sem  *semaphore.Weighted
	size int64
}

func NewPool(size int64) Pool {
	if size <= 0 {
		size = 1
	}
	return &semaphorePool{sem: semaphore.NewWeighted(size), size: size}
}

func (p *semaphorePool) Submit(ctx context.Context, task func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		task()
	}()
	return nil
}

func (p *semaphorePool) Size() int64 { return p.size }
