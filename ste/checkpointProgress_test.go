package ste

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckpointProgressTransitionsAreMonotone(t *testing.T) {
	a := assert.New(t)
	p := NewCheckpointProgress()

	p.TransitTo(ECheckpointState.PagesSnapshotted())
	a.False(p.InProgress()) // InProgress starts at LockReleased, not reached yet

	p.TransitTo(ECheckpointState.LockTaken()) // lower ordinal: no-op
	f := p.FutureFor(ECheckpointState.PagesSnapshotted())
	a.True(f.IsComplete())

	p.TransitTo(ECheckpointState.LockReleased())
	a.True(p.InProgress())
}

func TestCheckpointProgressFutureForResolvesImmediatelyIfAlreadyReached(t *testing.T) {
	a := assert.New(t)
	p := NewCheckpointProgress()
	p.TransitTo(ECheckpointState.LockTaken())

	f := p.FutureFor(ECheckpointState.Scheduled())
	a.True(f.IsComplete())
	a.NoError(f.Err())
}

func TestCheckpointProgressFutureForWaitsUntilReached(t *testing.T) {
	a := assert.New(t)
	p := NewCheckpointProgress()

	f := p.FutureFor(ECheckpointState.PagesWritten())
	a.False(f.IsComplete())

	go p.TransitTo(ECheckpointState.PagesWritten())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.NoError(f.Wait(ctx))
}

func TestCheckpointProgressFailCompletesOpenFuturesWithCause(t *testing.T) {
	a := assert.New(t)
	p := NewCheckpointProgress()
	cause := errors.New("disk full")

	f := p.FutureFor(ECheckpointState.Finished())
	p.Fail(cause)

	a.True(f.IsComplete())
	a.Equal(cause, f.Err())

	snap := p.Snapshot()
	a.Equal(ECheckpointState.Finished(), snap.State)
	a.Equal(cause, snap.Cause)
}

func TestCheckpointProgressCountersRequireInit(t *testing.T) {
	a := assert.New(t)
	p := NewCheckpointProgress()

	err := p.UpdateWritten(1)
	a.Error(err)

	p.InitCounters(100)
	a.NoError(p.UpdateWritten(10))
	a.NoError(p.UpdateSynced(5))
	a.NoError(p.UpdateEvicted(1))

	snap := p.Snapshot()
	a.Equal(int64(100), snap.Total)
	a.Equal(int64(10), snap.Written)
	a.Equal(int64(5), snap.Synced)
	a.Equal(int64(1), snap.Evicted)

	err = p.UpdateWritten(-1)
	a.Error(err)

	p.ClearCounters()
	a.NoError(p.UpdateEvicted(1)) // optional counters are a no-op once cleared
	err = p.UpdateWritten(1)
	a.Error(err) // required counter still errors once cleared
}

func TestCheckpointProgressDestroyQueueIsFIFO(t *testing.T) {
	a := assert.New(t)
	p := NewCheckpointProgress()

	_, ok := p.DequeueDestroy()
	a.False(ok)

	p.EnqueueDestroy(DestroyEntry{CacheID: "c1", PartitionID: 1})
	p.EnqueueDestroy(DestroyEntry{CacheID: "c1", PartitionID: 2})

	first, ok := p.DequeueDestroy()
	a.True(ok)
	a.Equal(int32(1), first.PartitionID)

	second, ok := p.DequeueDestroy()
	a.True(ok)
	a.Equal(int32(2), second.PartitionID)

	_, ok = p.DequeueDestroy()
	a.False(ok)
}
