package ste

import (
	"sync"

	"github.com/ignite-grid/compute-core/common"
)

// CollisionJobContext is one entry of a CollisionView: a live handle onto a
// job sitting in the scheduler's passive, active, or held maps at the instant
// a collision pass observed it (§4.D).
type CollisionJobContext interface {
	JobID() common.JobID
	// Activate atomically removes the job from passive, inserts it into
	// active, and submits it to its pool; it returns false if the job was
	// concurrently cancelled. Only meaningful for a passive context.
	Activate() bool
	// Cancel removes a passive context and rejects it with ExecutionRejected,
	// or cancels an active context as if from the system.
	Cancel()
}

// CollisionView is a forward-only iterator over one of the scheduler's maps
// at the instant a collision pass started. Iterators do not support removal;
// activation/cancellation is performed through the yielded context instead.
type CollisionView interface {
	Next() (CollisionJobContext, bool)
}

// sliceCollisionView adapts a pre-materialized slice of contexts (the
// scheduler snapshots its maps before invoking the policy) to CollisionView.
type sliceCollisionView struct {
	items []CollisionJobContext
	pos   int
}

func NewCollisionView(items []CollisionJobContext) CollisionView {
	return &sliceCollisionView{items: items}
}

func (v *sliceCollisionView) Next() (CollisionJobContext, bool) {
	if v.pos >= len(v.items) {
		return nil, false
	}
	item := v.items[v.pos]
	v.pos++
	return item, true
}

// CollisionPolicy is the pluggable decision point the scheduler consumes
// (§4.D): one operation over the live passive/active/held views, producing
// activate/cancel actions on individual contexts.
type CollisionPolicy interface {
	OnCollision(passive, active, held CollisionView)
	// SetExternalListener lets the policy ask the scheduler to re-run the
	// pass (e.g. its own internal queue changed). UnsetExternalListener
	// clears it.
	SetExternalListener(listener func())
	UnsetExternalListener()
}

// guardedCollisionPolicy wraps a CollisionPolicy with the thread-local
// re-entrancy guard required by §4.D: recursion into OnCollision from within
// the callback is suppressed. Because callerToken gives every caller the same
// token, at most one collision pass is active across all goroutines, and a
// pass started on another goroutine while one is running is dropped too.
// Modeled on common/exclusiveStringMap.go's guarded-admission
// pattern, generalized from "string already present" to "goroutine already
// inside this call".
type guardedCollisionPolicy struct {
	inner CollisionPolicy

	mu     sync.Mutex
	active map[int64]bool // keyed by callerToken()
}

// NewGuardedCollisionPolicy wraps inner so that an OnCollision call made
// while another is still running under the same callerToken (today: any
// other call) is dropped rather than recursing.
func NewGuardedCollisionPolicy(inner CollisionPolicy) CollisionPolicy {
	return &guardedCollisionPolicy{inner: inner, active: make(map[int64]bool)}
}

func (g *guardedCollisionPolicy) OnCollision(passive, active, held CollisionView) {
	token := callerToken()
	g.mu.Lock()
	if g.active[token] {
		g.mu.Unlock()
		return // recursive pass on this thread; suppressed
	}
	g.active[token] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.active, token)
		g.mu.Unlock()
	}()

	g.inner.OnCollision(passive, active, held)
}

func (g *guardedCollisionPolicy) SetExternalListener(listener func()) {
	g.inner.SetExternalListener(listener)
}

func (g *guardedCollisionPolicy) UnsetExternalListener() {
	g.inner.UnsetExternalListener()
}

// callerToken is a placeholder thread-local identity. Go has no public
// goroutine-id API and OnCollision takes no token from its caller, so this
// returns the same value for every caller: the guard treats all goroutines
// as one thread of control. That covers the same-goroutine recursive case
// the policy callback itself can trigger; it does not tell concurrent passes
// on different goroutines apart.
func callerToken() int64 { return 0 }

// alwaysActivatePolicy is the default policy described in §4.D: it activates
// everything immediately. The scheduler treats it like any other non-nil
// policy: jobs go through the passive map and each collision pass activates
// every passive context. Leaving SchedulerOptions.Policy nil is what skips
// the passive map and the policy entirely. cmd/demo.go installs it (wrapped
// by NewGuardedCollisionPolicy) to exercise that path.
type alwaysActivatePolicy struct {
	mu       sync.Mutex
	listener func()
}

func NewAlwaysActivatePolicy() CollisionPolicy {
	return &alwaysActivatePolicy{}
}

func (p *alwaysActivatePolicy) OnCollision(passive, _, _ CollisionView) {
	for {
		ctx, ok := passive.Next()
		if !ok {
			return
		}
		ctx.Activate()
	}
}

func (p *alwaysActivatePolicy) SetExternalListener(listener func()) {
	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()
}

func (p *alwaysActivatePolicy) UnsetExternalListener() {
	p.mu.Lock()
	p.listener = nil
	p.mu.Unlock()
}
