package common

import (
	"fmt"
	"sync"
)

var EPartitionState = PartitionState(0)

// PartitionState tracks where the table believes a partition currently sits.
type PartitionState uint8

func (PartitionState) Missing() PartitionState { return PartitionState(0) }
func (PartitionState) Owning() PartitionState  { return PartitionState(1) }
func (PartitionState) Moved() PartitionState   { return PartitionState(2) }

// defaultPartitionBitmapSize bounds the per-cache ownership Bitmap; a
// partition id at or beyond this falls back to the authoritative states map
// instead of growing the bitmap, since Bitmap itself is fixed-size once
// constructed.
const defaultPartitionBitmapSize = 1024

// PartitionTable is the host-supplied view of cache/partition ownership that
// PartitionReservation consults. It is a real, in-module fake rather than a
// mocked interface so the scheduler and worker tests in §8 can exercise
// genuine reserve/release behavior; production deployments would back this
// with the actual cache-partition map. Modeled on ExclusiveStringMap's
// guarded-admission-map pattern, generalized from membership to state.
type PartitionTable struct {
	mu      sync.RWMutex
	started map[string]bool           // cacheID -> started
	states  map[string]PartitionState // "cacheID/partitionID" -> state
	owning  map[string]Bitmap         // cacheID -> fast-path bitset of owning partition ids
}

func NewPartitionTable() *PartitionTable {
	return &PartitionTable{
		started: make(map[string]bool),
		states:  make(map[string]PartitionState),
		owning:  make(map[string]Bitmap),
	}
}

func (t *PartitionTable) StartCache(cacheID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started[cacheID] = true
	if _, ok := t.owning[cacheID]; !ok {
		t.owning[cacheID] = NewBitMap(defaultPartitionBitmapSize)
	}
}

func (t *PartitionTable) SetPartitionState(cacheID string, partitionID int32, state PartitionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[partitionKey(cacheID, partitionID)] = state
	if bm, ok := t.owning[cacheID]; ok && partitionID >= 0 && int(partitionID) < bm.Size() {
		if state == EPartitionState.Owning() {
			bm.Set(int(partitionID))
		} else {
			bm.Clear(int(partitionID))
		}
	}
}

// isOwningFast answers from the per-cache ownership bitmap when the
// partition id falls within it; known is false when the table has no bitmap
// for cacheID yet or partitionID exceeds defaultPartitionBitmapSize, in
// which case the caller should fall back to partitionState.
func (t *PartitionTable) isOwningFast(cacheID string, partitionID int32) (owning bool, known bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bm, ok := t.owning[cacheID]
	if !ok || partitionID < 0 || int(partitionID) >= bm.Size() {
		return false, false
	}
	return bm.Test(int(partitionID)), true
}

func (t *PartitionTable) cacheStarted(cacheID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started[cacheID]
}

func (t *PartitionTable) partitionState(cacheID string, partitionID int32) PartitionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[partitionKey(cacheID, partitionID)]
}

func partitionKey(cacheID string, partitionID int32) string {
	return fmt.Sprintf("%s/%d", cacheID, partitionID)
}

// partitionReservation implements PartitionReservation per §4.F. Reserve()
// walks the spec list; any cache missing/not-started, or any partition not
// OWNING, fails the whole reservation and releases what was already taken.
// A partition found not OWNING during the walk records a PartitionsLost
// GridError. A final double-check re-reads state after the walk completes;
// divergence there also surfaces as a PartitionsLost GridError. The caller
// can inspect either via LastError(), mirroring the source's
// "checkPartMapping" re-verification.
type partitionReservation struct {
	table     *PartitionTable
	specs     []PartitionSpec
	reserved  []PartitionSpec
	lastError error
}

func NewPartitionReservation(table *PartitionTable, specs []PartitionSpec) PartitionReservation {
	return &partitionReservation{table: table, specs: specs}
}

func (r *partitionReservation) Reserve() bool {
	if len(r.specs) == 0 {
		return true
	}

	for _, spec := range r.specs {
		if !r.table.cacheStarted(spec.CacheID) {
			r.releaseReserved()
			return false
		}
		if !r.isOwning(spec) {
			r.lastError = NewGridError(EErrorKind.PartitionsLost(),
				fmt.Sprintf("partition %d of cache %s is not owned locally", spec.PartitionID, spec.CacheID))
			r.releaseReserved()
			return false
		}
		r.reserved = append(r.reserved, spec)
	}

	// Final double-check: re-read every state we relied on before declaring
	// success, since cluster topology can move a partition mid-walk.
	for _, spec := range r.reserved {
		if !r.isOwning(spec) {
			r.lastError = NewGridError(EErrorKind.PartitionsLost(),
				fmt.Sprintf("partition %d of cache %s no longer owned locally", spec.PartitionID, spec.CacheID))
			r.releaseReserved()
			return false
		}
	}

	return true
}

// isOwning consults the table's per-cache ownership bitmap when the
// partition id is within its fixed range, falling back to the authoritative
// states map otherwise.
func (r *partitionReservation) isOwning(spec PartitionSpec) bool {
	if owning, known := r.table.isOwningFast(spec.CacheID, spec.PartitionID); known {
		return owning
	}
	return r.table.partitionState(spec.CacheID, spec.PartitionID) == EPartitionState.Owning()
}

func (r *partitionReservation) Release() {
	r.releaseReserved()
}

func (r *partitionReservation) releaseReserved() {
	// Ownership itself lives in the host's PartitionTable; this reservation
	// only forgets what it had claimed, so a second Release is a no-op.
	r.reserved = nil
}

// LastError returns the GridError recorded by a failed Reserve, if any.
func (r *partitionReservation) LastError() error {
	return r.lastError
}
