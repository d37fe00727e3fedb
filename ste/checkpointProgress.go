// Copyright © Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package ste

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/JeffreyRichter/enum/enum"
	"github.com/ignite-grid/compute-core/common"
)

var ECheckpointState = CheckpointState(0)

// CheckpointState is the totally-ordered enumeration a CheckpointProgress
// moves through. Ordinal order is transition order: a CAS to a lower ordinal
// is always a no-op.
type CheckpointState uint8

func (CheckpointState) Scheduled() CheckpointState        { return CheckpointState(0) }
func (CheckpointState) LockTaken() CheckpointState        { return CheckpointState(1) }
func (CheckpointState) PagesSnapshotted() CheckpointState { return CheckpointState(2) }
func (CheckpointState) LockReleased() CheckpointState     { return CheckpointState(3) }
func (CheckpointState) PagesWritten() CheckpointState     { return CheckpointState(4) }
func (CheckpointState) Finished() CheckpointState         { return CheckpointState(5) }

func (s CheckpointState) String() string {
	return enum.StringInt(s, reflect.TypeOf(s))
}

const checkpointStateCount = int(CheckpointState(0).Finished()) + 1

// DestroyEntry is one {cache, partition} pair queued for destruction once a
// checkpoint round finishes with it.
type DestroyEntry struct {
	CacheID     string
	PartitionID int32
}

// CheckpointProgress is a monotone state machine shared by writer threads and
// observers (§4.B): one instance per scheduled or running checkpoint. Any
// thread may observe state; a single privileged "checkpointer" thread is
// expected to call transitTo/fail. Grounded on ste/checkpoint-blob.go's
// mutex-guarded, per-checkpoint bookkeeping plus a flush-style background
// concern, generalized from a per-transfer bitmap to a per-state future
// array per the design notes ("a small fixed array of optional futures beats
// a map").
type CheckpointProgress struct {
	noCopy common.NoCopy

	mu    sync.Mutex
	state CheckpointState
	cause error

	futures [checkpointStateCount]*common.Future

	countersSet bool
	total       int64
	written     common.AtomicNumeric[int64]
	synced      common.AtomicNumeric[int64]
	evicted     common.AtomicNumeric[int64]
	recovery    common.AtomicNumeric[int64]

	destroyQueue *common.LinkedList[DestroyEntry]

	wakeupDeadlineNanos int64
	wakeupReason        string
}

func NewCheckpointProgress() *CheckpointProgress {
	return &CheckpointProgress{
		destroyQueue: &common.LinkedList[DestroyEntry]{},
	}
}

// transitTo advances the progress to s if s is strictly greater than the
// current state, completing every per-state future for states <= s with the
// recorded failure cause, if any, otherwise successfully.
func (p *CheckpointProgress) TransitTo(s CheckpointState) {
	p.noCopy.Check()
	p.mu.Lock()
	if s <= p.state {
		p.mu.Unlock()
		return
	}
	p.state = s
	cause := p.cause
	toComplete := p.futuresUpTo(s)
	p.mu.Unlock()

	for _, f := range toComplete {
		if f != nil {
			f.Complete(cause)
		}
	}
}

// Fail records cause and transits to Finished, completing every still-open
// future with cause.
func (p *CheckpointProgress) Fail(cause error) {
	p.mu.Lock()
	if p.cause == nil {
		p.cause = cause
	}
	p.mu.Unlock()
	p.TransitTo(ECheckpointState.Finished())
}

// FutureFor returns (creating lazily) a completion handle that resolves when
// the progress reaches >= s; if already reached, it resolves synchronously.
func (p *CheckpointProgress) FutureFor(s CheckpointState) *common.Future {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := p.futures[s]
	if f == nil {
		f = common.NewFuture()
		p.futures[s] = f
	}
	if p.state >= s && !f.IsComplete() {
		cause := p.cause
		// unlock briefly isn't needed: Complete never blocks
		f.Complete(cause)
	}
	return f
}

// OnStateChanged attaches callback, fired iff the future for s completes
// without error.
func (p *CheckpointProgress) OnStateChanged(s CheckpointState, callback func()) {
	f := p.FutureFor(s)
	go func() {
		<-f.Done()
		if f.Err() == nil {
			callback()
		}
	}()
}

// futuresUpTo returns every allocated future for states <= s, allocating none
// that don't already exist (callers that never asked for a future for a given
// state don't pay for one).
func (p *CheckpointProgress) futuresUpTo(s CheckpointState) []*common.Future {
	out := make([]*common.Future, 0, int(s)+1)
	for i := 0; i <= int(s); i++ {
		out = append(out, p.futures[i])
	}
	return out
}

// InitCounters sets the page total and installs four atomic counters at zero.
func (p *CheckpointProgress) InitCounters(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = n
	p.written = common.NewAtomicNumeric[int64](0)
	p.synced = common.NewAtomicNumeric[int64](0)
	p.evicted = common.NewAtomicNumeric[int64](0)
	p.recovery = common.NewAtomicNumeric[int64](0)
	p.countersSet = true
}

// ClearCounters releases the counters and zeros the total; only valid after
// Finished, per the contract in §4.B.
func (p *CheckpointProgress) ClearCounters() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = 0
	p.written = nil
	p.synced = nil
	p.evicted = nil
	p.recovery = nil
	p.countersSet = false
}

func (p *CheckpointProgress) UpdateWritten(delta int64) error {
	return p.updateRequired(&p.written, "written", delta)
}

func (p *CheckpointProgress) UpdateSynced(delta int64) error {
	return p.updateRequired(&p.synced, "synced", delta)
}

func (p *CheckpointProgress) UpdateEvicted(delta int64) error {
	return p.updateOptional(&p.evicted, delta)
}

func (p *CheckpointProgress) UpdateRecovery(delta int64) error {
	return p.updateOptional(&p.recovery, delta)
}

func (p *CheckpointProgress) updateRequired(counter *common.AtomicNumeric[int64], name string, delta int64) error {
	if delta <= 0 {
		return common.NewGridError(common.EErrorKind.ExecutionRejected(), fmt.Sprintf("%s counter delta must be > 0", name))
	}
	p.mu.Lock()
	c := *counter
	set := p.countersSet
	p.mu.Unlock()
	if !set || c == nil {
		return common.NewGridError(common.EErrorKind.ExecutionRejected(), fmt.Sprintf("%s counter required but not initialized", name))
	}
	c.Add(delta)
	return nil
}

func (p *CheckpointProgress) updateOptional(counter *common.AtomicNumeric[int64], delta int64) error {
	if delta <= 0 {
		return common.NewGridError(common.EErrorKind.ExecutionRejected(), "counter delta must be > 0")
	}
	p.mu.Lock()
	c := *counter
	p.mu.Unlock()
	if c == nil {
		return nil // missing (cleared) counter is a no-op for evicted/recovery
	}
	c.Add(delta)
	return nil
}

// InProgress ≡ LOCK_RELEASED <= state < FINISHED.
func (p *CheckpointProgress) InProgress() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state >= ECheckpointState.LockReleased() && p.state < ECheckpointState.Finished()
}

// EnqueueDestroy appends a {cache, partition} pair to the opaque
// partition-destroy FIFO.
func (p *CheckpointProgress) EnqueueDestroy(entry DestroyEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyQueue.Insert(entry)
}

// DequeueDestroy pops the oldest queued destroy entry, if any.
func (p *CheckpointProgress) DequeueDestroy() (DestroyEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyQueue.Len() == 0 {
		return DestroyEntry{}, false
	}
	e := p.destroyQueue.Back()
	p.destroyQueue.PopRear()
	return e, true
}

func (p *CheckpointProgress) SetWakeup(deadlineNanos int64, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wakeupDeadlineNanos = deadlineNanos
	p.wakeupReason = reason
}

// CheckpointSnapshot is a read-only copy of a progress instance's state and
// counters, for the observability surface (§6, SPEC_FULL §4.B supplement).
type CheckpointSnapshot struct {
	State    CheckpointState
	Cause    error
	Total    int64
	Written  int64
	Synced   int64
	Evicted  int64
	Recovery int64
}

// Snapshot returns CheckpointSnapshot for the current instant, grounded on
// jobCheckpointMetaFile.ListOfTransfersInMetafile/CurrentMapForTransfer's
// read-under-lock-then-copy shape.
func (p *CheckpointProgress) Snapshot() CheckpointSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := CheckpointSnapshot{State: p.state, Cause: p.cause, Total: p.total}
	if p.written != nil {
		snap.Written = p.written.Load()
	}
	if p.synced != nil {
		snap.Synced = p.synced.Load()
	}
	if p.evicted != nil {
		snap.Evicted = p.evicted.Load()
	}
	if p.recovery != nil {
		snap.Recovery = p.recovery.Load()
	}
	return snap
}
