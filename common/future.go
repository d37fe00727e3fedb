package common

import (
	"context"
	"sync"
)

// Future is a one-shot completion handle, closed exactly once with an
// optional error. It mirrors chunkedFileWriter's success/failure channel
// pair (successMd5/failureError) generalized into a single reusable type:
// Checkpoint Progress uses one per tracked state.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete resolves the future with err. Only the first call has any effect.
func (f *Future) Complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err blocks until completion and returns the recorded error, if any.
func (f *Future) Err() error {
	<-f.done
	return f.err
}
