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

// Package jobsAdmin owns the Job Scheduler: the passive/active/syncRunning/
// cancelled maps, the bounded finished/cancelReqs structures, and the
// process-wide RW lock gating every public entry point (§4.E). Grounded on
// ste/mgr-JobMgr.go's map-owning singleton shape and jobsAdmin's own
// top-level admin-loop role in the teacher.
package jobsAdmin

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/JeffreyRichter/enum/enum"
	"github.com/ignite-grid/compute-core/common"
	"github.com/ignite-grid/compute-core/ste"
)

const defaultFinishedCapacity = 10_240
const defaultCancelReqsCapacity = 10_240

var ESchedulerEntryState = SchedulerEntryState(0)

// SchedulerEntryState tags one row of the flattened observability view (§6).
type SchedulerEntryState uint8

func (SchedulerEntryState) Active() SchedulerEntryState    { return SchedulerEntryState(0) }
func (SchedulerEntryState) Passive() SchedulerEntryState    { return SchedulerEntryState(1) }
func (SchedulerEntryState) Cancelled() SchedulerEntryState { return SchedulerEntryState(2) }

func (s SchedulerEntryState) String() string {
	return enum.StringInt(s, reflect.TypeOf(s))
}

// SchedulerViewEntry is one row of the flattened read-only view.
type SchedulerViewEntry struct {
	JobID common.JobID
	State SchedulerEntryState
}

// SchedulerOptions configures a Scheduler at construction time. Collision
// admission is enabled by passing a non-nil Policy; leaving it nil selects
// the "always activate" mode where passive is absent and the policy is
// never invoked (§4.D).
type SchedulerOptions struct {
	Messenger   common.Messenger
	Cluster     common.Cluster
	Deployments common.DeploymentRegistry
	Config      common.DistributedConfig
	PerfStats   common.PerformanceStatsSink
	Partitions  *common.PartitionTable
	Policy      ste.CollisionPolicy

	DefaultPoolSize    int64
	FinishedCapacity   int
	CancelReqsCapacity int

	// MaxActiveJobs bounds the total number of concurrently active jobs
	// across every pool; 0 means unbounded. Callers admitting a burst of
	// execute-requests larger than total pool capacity use this to apply
	// back-pressure: onBeforeActivate waits until a slot is free before it
	// inserts the job into active.
	MaxActiveJobs int64
}

// Scheduler is the Job Scheduler (component H, §4.E): it owns the passive/
// active/syncRunning/cancelled maps, processes incoming execute/cancel/
// session-attribute messages, handles master-leave, drives collision
// passes, and publishes metrics.
type Scheduler struct {
	// mu is the process-wide read-write lock from §5: read-lock holders are
	// message handlers and collision passes, the write-lock is taken only by
	// Stop. A standard sync.RWMutex is used — no custom spin/writer-
	// preferring lock exists anywhere in the example pack, so this is the
	// stdlib-justified exception noted in DESIGN.md.
	mu       sync.RWMutex
	stopping bool

	collisionEnabled bool
	policy           ste.CollisionPolicy

	passive     *common.SyncMap[common.JobID, *ste.JobWorker]
	active      *common.SyncMap[common.JobID, *ste.JobWorker]
	syncRunning *common.SyncMap[common.JobID, *ste.JobWorker]
	cancelledM  *common.SyncMap[common.JobID, *ste.JobWorker]
	held        *common.SyncMap[common.JobID, *ste.JobWorker]

	finished   *common.BoundedOrderedSet[common.JobID]
	cancelReqs *common.BoundedOrderedMap[string, bool]

	// dedupe guards against a redelivered execute-request message (the
	// Messenger interface makes no exactly-once promise) constructing a
	// second worker for a job-id already in flight.
	dedupe *common.ExclusiveStringMap

	messenger   common.Messenger
	cluster     common.Cluster
	deployments common.DeploymentRegistry
	config      common.DistributedConfig
	perfStats   common.PerformanceStatsSink
	partitions  *common.PartitionTable

	pools       map[string]Pool
	defaultPool Pool

	activeJobLimiter *common.SharedCounter
	maxActiveJobs    int64

	metricsCount   int64
	cancelledCount int64
	activatedCount int64
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	finishedCap := opts.FinishedCapacity
	if finishedCap <= 0 {
		finishedCap = defaultFinishedCapacity
	}
	cancelReqsCap := opts.CancelReqsCapacity
	if cancelReqsCap <= 0 {
		cancelReqsCap = defaultCancelReqsCapacity
	}
	poolSize := opts.DefaultPoolSize
	if poolSize <= 0 {
		poolSize = int64(common.ComputeConcurrencyValue(runtime.NumCPU()))
	}

	s := &Scheduler{
		collisionEnabled: opts.Policy != nil,
		policy:           opts.Policy,
		passive:          common.NewSyncMap[common.JobID, *ste.JobWorker](),
		active:           common.NewSyncMap[common.JobID, *ste.JobWorker](),
		syncRunning:      common.NewSyncMap[common.JobID, *ste.JobWorker](),
		cancelledM:       common.NewSyncMap[common.JobID, *ste.JobWorker](),
		held:             common.NewSyncMap[common.JobID, *ste.JobWorker](),
		finished:         common.NewBoundedOrderedSet[common.JobID](finishedCap),
		cancelReqs:       common.NewBoundedOrderedMap[string, bool](cancelReqsCap),
		dedupe:           common.NewExclusiveStringMap(true),
		messenger:        opts.Messenger,
		cluster:          opts.Cluster,
		deployments:      opts.Deployments,
		config:           opts.Config,
		perfStats:        opts.PerfStats,
		partitions:       opts.Partitions,
		pools:            make(map[string]Pool),
		defaultPool:      NewPool(poolSize),
		activeJobLimiter: common.NewSharedCounter(),
		maxActiveJobs:    opts.MaxActiveJobs,
	}
	if s.collisionEnabled {
		s.policy.SetExternalListener(s.runCollisionPass)
	}
	return s
}

// Start installs the three message listeners and subscribes to cluster
// events, per §4.E "Lifecycle".
func (s *Scheduler) Start() {
	s.messenger.AddListener(common.TopicJob, s.onExecuteRequestMessage)
	s.messenger.AddListener(common.TopicJobCancel, s.onCancelRequestMessage)
	s.messenger.AddListener(common.TopicJobSiblings, s.onSessionAttributeRequestMessage)
	s.cluster.OnNodeLeftOrFailed(s.handleNodeLeftOrFailed)
	s.cluster.OnMetricsUpdated(s.handleMetricsUpdated)
}

// Stop flips the stopping flag under the write lock; every entry-point
// bails out early under the read lock from this point on. If cancel is
// true, all passive jobs are rejected and all active jobs are hard-
// cancelled; otherwise the scheduler lets jobs complete naturally.
func (s *Scheduler) Stop(cancel bool) {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	if !cancel {
		return
	}

	// Errors inside the stop path are logged and swallowed (§7 Propagation
	// policy); a panic cancelling one job must not abort cancellation of the
	// rest.
	for id, w := range s.passive.Snapshot() {
		s.stopCancel(func() { s.cancelPassive(id, w, true) }, id)
	}
	for id, w := range s.active.Snapshot() {
		s.stopCancel(func() { s.cancelActive(id, w, true) }, id)
	}
}

func (s *Scheduler) stopCancel(fn func(), id common.JobID) {
	defer func() {
		if r := recover(); r != nil {
			common.LogToJobLogWithPrefix(fmt.Sprintf("%s: cancel during stop panicked: %v", id.String(), r), common.ELogLevel.Error())
		}
	}()
	fn()
}

func (s *Scheduler) poolFor(executorName string) Pool {
	if executorName == "" {
		return s.defaultPool
	}
	s.mu.RLock()
	p, ok := s.pools[executorName]
	s.mu.RUnlock()
	if ok {
		return p
	}
	return s.defaultPool
}

// RegisterPool installs a named executor pool; jobs whose ExecutorName
// matches use it instead of the default pool.
func (s *Scheduler) RegisterPool(name string, pool Pool) {
	s.mu.Lock()
	s.pools[name] = pool
	s.mu.Unlock()
}

// -------------------------------------------------------------------------
// Execute-request processing (§4.E "the hot path")
// -------------------------------------------------------------------------

func (s *Scheduler) onExecuteRequestMessage(origin common.NodeID, payload any) {
	req, ok := payload.(ExecuteRequest)
	if !ok {
		return
	}
	if !s.mu.TryRLock() {
		return // a failing tryReadLock means we are shutting down
	}
	defer s.mu.RUnlock()
	if s.stopping {
		return
	}
	s.processExecuteRequest(origin, req)
}

func (s *Scheduler) processExecuteRequest(origin common.NodeID, req ExecuteRequest) {
	if err := s.dedupe.Add(req.JobID.String()); err != nil {
		return // already in flight; a redelivered message, not a new job
	}

	// Step 2: resolve deployment.
	deployment, ok := s.deployments.Resolve(req.ClassName, req.ForceLocal)
	if !ok {
		deployment, ok = s.deployments.ResolveByLoaderID(req.ClassLoaderID)
	}
	if !ok {
		s.dedupe.Remove(req.JobID.String())
		s.sendErrorResponse(req.JobID, origin, common.NewGridError(common.EErrorKind.DeploymentMissing(),
			"no deployment found for "+req.ClassName))
		return
	}

	// Step 3: acquire (+1); every error path below must release it.
	deployment.Acquire()

	// Step 4: unmarshal siblings/session-attrs/topology-predicate/job-attrs
	// using the deployment's class loader. Deserialization itself is out of
	// scope (§1); we only check that job attributes were supplied, and a
	// request with nil JobAttrs is rejected as undecodable.
	if req.JobAttrs == nil {
		deployment.Release()
		s.dedupe.Remove(req.JobID.String())
		s.sendErrorResponse(req.JobID, origin, common.NewGridError(common.EErrorKind.DeserializationFailed(),
			"job attributes could not be decoded"))
		return
	}

	// Step 5: construct the worker.
	var reservation common.PartitionReservation
	if s.partitions != nil && len(req.CacheIDs) > 0 {
		specs := make([]common.PartitionSpec, len(req.CacheIDs))
		for i, c := range req.CacheIDs {
			specs[i] = common.PartitionSpec{CacheID: c, PartitionID: req.PartitionID, TopologyVersion: req.TopologyVersion}
		}
		reservation = common.NewPartitionReservation(s.partitions, specs)
	}

	worker := ste.NewJobWorker(ste.JobWorkerConfig{
		JobID:              req.JobID,
		SessionID:          req.SessionID,
		OriginNode:         origin,
		CreateTime:         req.CreateTime,
		Timeout:            req.Timeout,
		Internal:           req.Internal,
		ExecutorName:       req.ExecutorName,
		JobAttrs:           req.JobAttrs,
		Deployment:         deployment,
		Reservation:        reservation,
		Messenger:          s.messenger,
		SessionFullSupport: req.SessionFullSupport,
		Config:             s.config,
		PerfStats:          s.perfStats,
		Listeners: ste.JobWorkerListeners{
			OnStarted:  s.onWorkerStarted,
			OnHeld:     s.onWorkerHeld,
			OnUnheld:   s.onWorkerUnheld,
			OnFinished: s.onWorkerFinished,
		},
	})

	// Step 6: init is implicit (class already bound via deployment.Run);
	// nothing further to bind here.

	// Step 7: dispatch.
	switch {
	case req.Internal:
		s.syncRunning.Set(worker.JobID(), worker)
		worker.MarkQueued()
		worker.Run(context.Background())
		s.syncRunning.Delete(worker.JobID())

	case !s.collisionEnabled:
		worker.MarkQueued()
		s.activateAndRun(worker, origin == s.cluster.LocalNode())

	default:
		worker.MarkQueued()
		if _, existed := s.passive.Get(worker.JobID()); existed {
			return // duplicate passive entry; drop this one
		}
		s.passive.Set(worker.JobID(), worker)
		s.runCollisionPass()
	}
}

// activateAndRun is onBeforeActivate followed by dispatch to a pool (or
// synchronous execution when the caller is already an RPC handler thread for
// a remote origin). submitToPool controls which.
func (s *Scheduler) activateAndRun(w *ste.JobWorker, submitToPool bool) bool {
	if !s.onBeforeActivate(w) {
		return false
	}
	if submitToPool {
		if err := s.poolFor(w.ExecutorName()).Submit(context.Background(), func() { w.Run(context.Background()) }); err != nil {
			s.active.Delete(w.JobID())
			w.RejectBeforeRun(common.NewGridError(common.EErrorKind.ExecutionRejected(), "pool submission rejected"))
			return false
		}
		return true
	}
	w.Run(context.Background())
	return true
}

// onBeforeActivate inserts w into active; if a cancel-request for its job-id
// or session-id was already recorded, it is removed and rejected; if the
// origin task node is no longer alive, it is removed from active and
// finished at once with a MasterNodeLeft error, without passing through
// cancelled. Returns true iff still eligible to run (§4.E).
func (s *Scheduler) onBeforeActivate(w *ste.JobWorker) bool {
	if s.maxActiveJobs > 0 {
		s.activeJobLimiter.WaitUntilLessThan(s.maxActiveJobs)
	}
	s.activeJobLimiter.Add(1)
	s.active.Set(w.JobID(), w)

	if systemInitiated, existed := s.popCancelReq(w.JobID(), w.SessionID()); existed {
		s.active.Delete(w.JobID())
		_ = systemInitiated
		w.RejectBeforeRun(common.NewGridError(common.EErrorKind.ExecutionRejected(), "cancelled before activation"))
		return false
	}

	if !s.cluster.IsAlive(w.OriginNode()) {
		s.active.Delete(w.JobID())
		w.RejectBeforeRun(common.NewGridError(common.EErrorKind.MasterNodeLeft(), "origin node no longer alive"))
		return false
	}

	return true
}

func (s *Scheduler) popCancelReq(job common.JobID, session common.SessionID) (bool, bool) {
	jobKey := cancelReqKey(&job, nil)
	if v, ok := s.cancelReqs.Get(jobKey); ok {
		s.cancelReqs.Delete(jobKey)
		return v, true
	}
	sessKey := cancelReqKey(nil, &session)
	if v, ok := s.cancelReqs.Get(sessKey); ok {
		s.cancelReqs.Delete(sessKey)
		return v, true
	}
	return false, false
}

func (s *Scheduler) sendErrorResponse(job common.JobID, origin common.NodeID, err error) {
	if s.messenger == nil {
		return
	}
	topic := common.JobResponseTopic(job, origin)
	if sendErr := s.messenger.SendUnordered(origin, topic, err); sendErr != nil {
		replyErr := common.WrapGridError(common.EErrorKind.JobReplyFailed(), "failed to send error response to origin node", sendErr)
		common.LogToJobLogWithPrefix(job.String()+": "+replyErr.Error(), common.ELogLevel.Error())
	}
}

// -------------------------------------------------------------------------
// Cancel-request processing (§4.E)
// -------------------------------------------------------------------------

func (s *Scheduler) onCancelRequestMessage(_ common.NodeID, payload any) {
	req, ok := payload.(CancelRequest)
	if !ok {
		return
	}
	if !s.mu.TryRLock() {
		return
	}
	defer s.mu.RUnlock()
	if s.stopping {
		return
	}
	s.processCancelRequest(req)
}

func (s *Scheduler) processCancelRequest(req CancelRequest) {
	s.cancelReqs.Insert(cancelReqKey(req.JobID, req.SessionID), req.SystemInitiated)

	if req.JobID != nil {
		if w, ok := s.passive.Get(*req.JobID); ok {
			s.cancelPassive(*req.JobID, w, req.SystemInitiated)
			return
		}
		if w, ok := s.active.Get(*req.JobID); ok {
			s.cancelActive(*req.JobID, w, req.SystemInitiated)
			return
		}
		if w, ok := s.syncRunning.Get(*req.JobID); ok {
			w.Cancel(req.SystemInitiated)
			return
		}
		return
	}

	if req.SessionID == nil {
		return
	}
	for id, w := range s.passive.Snapshot() {
		if w.SessionID() == *req.SessionID {
			s.cancelPassive(id, w, req.SystemInitiated)
		}
	}
	for id, w := range s.active.Snapshot() {
		if w.SessionID() == *req.SessionID {
			s.cancelActive(id, w, req.SystemInitiated)
		}
	}
	for id, w := range s.syncRunning.Snapshot() {
		if w.SessionID() == *req.SessionID {
			w.Cancel(req.SystemInitiated)
		}
	}
}

// recordCancelReq inserts id into cancelReqs flagged systemInitiated. Both
// the cancel-request path (processCancelRequest) and the collision-policy
// path (collisionContext.Cancel) must populate this bounded map, since
// onBeforeActivate consults it to reject a job that was cancelled before it
// ever got a chance to activate.
func (s *Scheduler) recordCancelReq(id common.JobID, systemInitiated bool) {
	s.cancelReqs.Insert(cancelReqKey(&id, nil), systemInitiated)
}

// cancelPassive removes a passive job and rejects it without dispatching to
// any pool (§4.D "cancel() on a passive context").
func (s *Scheduler) cancelPassive(id common.JobID, w *ste.JobWorker, systemInitiated bool) {
	s.recordCancelReq(id, systemInitiated)
	if !s.passive.DeleteIf(id, func(*ste.JobWorker) bool { return true }) {
		return
	}
	atomic.AddInt64(&s.cancelledCount, 1)
	// onWorkerFinished releases one limiter slot for every non-internal
	// worker; take one here so rejecting a never-activated job leaves the
	// active-job count unchanged.
	s.activeJobLimiter.Add(1)
	w.RejectBeforeRun(common.NewGridError(common.EErrorKind.ExecutionRejected(), "rejected by collision policy or cancel-request"))
}

// cancelActive moves an active job to cancelled unless it has already
// appeared in finished, in which case the cancelled entry is dropped to
// avoid leaks (§4.E "Cancel-request processing").
func (s *Scheduler) cancelActive(id common.JobID, w *ste.JobWorker, systemInitiated bool) {
	s.recordCancelReq(id, systemInitiated)
	s.active.Delete(id)
	s.held.Delete(id)
	if s.finished.Contains(id) {
		return
	}
	s.cancelledM.Set(id, w)
	atomic.AddInt64(&s.cancelledCount, 1)
	w.Cancel(systemInitiated)
}

// -------------------------------------------------------------------------
// Session-attribute-request processing
// -------------------------------------------------------------------------

// onSessionAttributeRequestMessage is the third fixed-topic listener from
// §4.E's Lifecycle; session attribute propagation itself rides on the
// Messenger's ordered/unordered channel and is otherwise out of scope here.
func (s *Scheduler) onSessionAttributeRequestMessage(_ common.NodeID, _ any) {
	if !s.mu.TryRLock() {
		return
	}
	defer s.mu.RUnlock()
}

// -------------------------------------------------------------------------
// Master-leave handling (§4.E)
// -------------------------------------------------------------------------

func (s *Scheduler) handleNodeLeftOrFailed(node common.NodeID) {
	if !s.mu.TryRLock() {
		return
	}
	defer s.mu.RUnlock()
	if s.stopping {
		return
	}

	for id, w := range s.passive.Snapshot() {
		if w.OriginNode() == node {
			s.passive.Delete(id)
		}
	}
	for id, w := range s.active.Snapshot() {
		if w.OriginNode() != node {
			continue
		}
		s.active.Delete(id)
		s.held.Delete(id)
		s.cancelledM.Set(id, w)
		if !w.MasterNodeLeft() {
			w.Cancel(true)
		}
	}

	// Capacity changed; give every policy a chance to react.
	s.runCollisionPass()
}

// -------------------------------------------------------------------------
// Metrics-updated handling (§4.E)
// -------------------------------------------------------------------------

func (s *Scheduler) handleMetricsUpdated() {
	if !s.mu.TryRLock() {
		return
	}
	stopping := s.stopping
	clusterSize := 0
	if s.cluster != nil {
		clusterSize = s.cluster.Size()
	}
	s.mu.RUnlock()
	if stopping {
		return
	}

	n := atomic.AddInt64(&s.metricsCount, 1)
	if clusterSize > 0 && n >= int64(clusterSize) {
		atomic.StoreInt64(&s.metricsCount, 0)
		s.runCollisionPass()
	}
}

// -------------------------------------------------------------------------
// Collision pass (§4.D)
// -------------------------------------------------------------------------

func (s *Scheduler) runCollisionPass() {
	if !s.collisionEnabled {
		return
	}

	passiveSnap := s.passive.Snapshot()
	activeSnap := s.active.Snapshot()
	heldSnap := s.held.Snapshot()

	passiveCtxs := make([]ste.CollisionJobContext, 0, len(passiveSnap))
	for id, w := range passiveSnap {
		passiveCtxs = append(passiveCtxs, &collisionContext{s: s, id: id, w: w, passive: true})
	}
	activeCtxs := make([]ste.CollisionJobContext, 0, len(activeSnap))
	for id, w := range activeSnap {
		activeCtxs = append(activeCtxs, &collisionContext{s: s, id: id, w: w, passive: false})
	}
	heldCtxs := make([]ste.CollisionJobContext, 0, len(heldSnap))
	for id, w := range heldSnap {
		heldCtxs = append(heldCtxs, &collisionContext{s: s, id: id, w: w, passive: false})
	}

	// Errors inside collision callbacks are caught and logged; they never
	// bubble out of this pass (§7 Propagation policy).
	func() {
		defer func() {
			if r := recover(); r != nil {
				common.LogToJobLogWithPrefix(fmt.Sprintf("collision callback panicked: %v", r), common.ELogLevel.Error())
			}
		}()
		s.policy.OnCollision(
			ste.NewCollisionView(passiveCtxs),
			ste.NewCollisionView(activeCtxs),
			ste.NewCollisionView(heldCtxs),
		)
	}()
}

// collisionContext implements ste.CollisionJobContext over one scheduler
// entry, per §4.D.
type collisionContext struct {
	s       *Scheduler
	id      common.JobID
	w       *ste.JobWorker
	passive bool
}

func (c *collisionContext) JobID() common.JobID { return c.id }

func (c *collisionContext) Activate() bool {
	if !c.passive {
		return false
	}
	if !c.s.passive.DeleteIf(c.id, func(*ste.JobWorker) bool { return true }) {
		return false // concurrently cancelled
	}
	return c.s.activateAndRun(c.w, true)
}

func (c *collisionContext) Cancel() {
	if c.passive {
		c.s.cancelPassive(c.id, c.w, false)
	} else {
		c.s.cancelActive(c.id, c.w, false)
	}
}

// -------------------------------------------------------------------------
// Held-worker side-set callbacks (§3 invariant I3)
// -------------------------------------------------------------------------

// onWorkerStarted fires when a worker's Run transitions it to STARTED,
// whether dispatched to a pool or run synchronously on the calling thread
// (§4.E step 7 "increment started").
func (s *Scheduler) onWorkerStarted(*ste.JobWorker) {
	atomic.AddInt64(&s.activatedCount, 1)
}

func (s *Scheduler) onWorkerHeld(w *ste.JobWorker) {
	if _, ok := s.active.Get(w.JobID()); !ok {
		return // concurrent finish; I3 requires held ⊆ active
	}
	s.held.Set(w.JobID(), w)
}

func (s *Scheduler) onWorkerUnheld(w *ste.JobWorker) {
	s.held.Delete(w.JobID())
}

func (s *Scheduler) onWorkerFinished(w *ste.JobWorker) {
	id := w.JobID()
	s.active.Delete(id)
	s.held.Delete(id)
	s.cancelledM.Delete(id)
	s.finished.Insert(id)
	s.dedupe.Remove(id.String())
	if !w.Internal() {
		s.activeJobLimiter.Add(-1)
	}
}

// -------------------------------------------------------------------------
// Observability (§6)
// -------------------------------------------------------------------------

// View returns the flattened read-only view over {active, syncRunning,
// passive, cancelled}, keyed by job id. syncRunning entries are tagged
// Active, per the Open Question in §9 (internal jobs remain visible).
func (s *Scheduler) View() []SchedulerViewEntry {
	var out []SchedulerViewEntry
	for id := range s.active.Snapshot() {
		out = append(out, SchedulerViewEntry{JobID: id, State: ESchedulerEntryState.Active()})
	}
	for id := range s.syncRunning.Snapshot() {
		out = append(out, SchedulerViewEntry{JobID: id, State: ESchedulerEntryState.Active()})
	}
	for id := range s.passive.Snapshot() {
		out = append(out, SchedulerViewEntry{JobID: id, State: ESchedulerEntryState.Passive()})
	}
	for id := range s.cancelledM.Snapshot() {
		out = append(out, SchedulerViewEntry{JobID: id, State: ESchedulerEntryState.Cancelled()})
	}
	return out
}

// Counters is the small metrics snapshot returned on demand by
// Scheduler.Counters(); no background loop publishes it.
type Counters struct {
	Active      int
	Passive     int
	SyncRunning int
	Cancelled   int
	Finished    int
	Activated   int64
	CancelledN  int64
}

func (s *Scheduler) Counters() Counters {
	return Counters{
		Active:      s.active.Len(),
		Passive:     s.passive.Len(),
		SyncRunning: s.syncRunning.Len(),
		Cancelled:   s.cancelledM.Len(),
		Finished:    s.finished.Len(),
		Activated:   atomic.LoadInt64(&s.activatedCount),
		CancelledN:  atomic.LoadInt64(&s.cancelledCount),
	}
}
