package ste

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/JeffreyRichter/enum/enum"
	"github.com/ignite-grid/compute-core/common"
)

var EJobWorkerState = JobWorkerState(0)

// JobWorkerState enumerates the lifecycle states of §3 "Job Worker
// lifecycle": QUEUED -> STARTED -> (HELD <-> STARTED)* -> FINISHING ->
// FINISHED, plus a terminal CANCELLED reachable from any non-terminal state.
type JobWorkerState uint8

func (JobWorkerState) Queued() JobWorkerState    { return JobWorkerState(0) }
func (JobWorkerState) Started() JobWorkerState   { return JobWorkerState(1) }
func (JobWorkerState) Held() JobWorkerState      { return JobWorkerState(2) }
func (JobWorkerState) Finishing() JobWorkerState { return JobWorkerState(3) }
func (JobWorkerState) Finished() JobWorkerState  { return JobWorkerState(4) }
func (JobWorkerState) Cancelled() JobWorkerState { return JobWorkerState(5) }

func (s JobWorkerState) String() string {
	return enum.StringInt(s, reflect.TypeOf(s))
}

// JobWorkerListeners are the lifecycle callbacks the Scheduler installs to
// keep its maps in sync with a worker's progress (§3: "Transitions fire
// listener callbacks").
type JobWorkerListeners struct {
	OnQueued              func(*JobWorker)
	OnStarted             func(*JobWorker)
	OnBeforeResponseSent  func(*JobWorker, any, error)
	OnFinished            func(*JobWorker)
	OnHeld                func(*JobWorker)
	OnUnheld              func(*JobWorker)
}

// JobWorkerConfig bundles everything a Job Worker needs to run one job,
// mirroring §4.E step 5's worker-construction argument list: {deployment,
// session, context, create-time, origin node, internal flag, listeners,
// partition-reservation, topology version, executor-name, interrupt-timeout
// supplier}.
type JobWorkerConfig struct {
	JobID        common.JobID
	SessionID    common.SessionID
	OriginNode   common.NodeID
	CreateTime   time.Time
	Timeout      time.Duration // end-time = create + timeout, clamped at +inf on overflow
	Internal     bool
	ExecutorName string
	JobAttrs     map[string]any

	Deployment         common.Deployment
	Reservation        common.PartitionReservation
	Messenger          common.Messenger
	SessionFullSupport bool
	Config             common.DistributedConfig
	PerfStats          common.PerformanceStatsSink
	Listeners          JobWorkerListeners
}

// JobWorker executes one job to completion on a worker pool, reporting
// result/error back to the task originator via the Messenger and firing
// lifecycle callbacks so the Scheduler can maintain its maps (§4.C).
// Grounded on ste/mgr-JobPartTransferMgr.go's per-transfer bookkeeping and
// common/chunkedFileWriter.go's worker-goroutine/completion-channel shape.
type JobWorker struct {
	cfg JobWorkerConfig

	mu                 sync.Mutex
	state              JobWorkerState
	cancelRequested    bool
	systemInitiated    bool
	timedOut           bool
	responseSuppressed bool

	deploymentReleased  bool
	reservationReleased bool

	cancelSignal chan struct{}
	cancelOnce   sync.Once
	doneOnce     sync.Once
	forceTimer   *time.Timer

	done chan struct{}

	queuedAt time.Time
}

func NewJobWorker(cfg JobWorkerConfig) *JobWorker {
	return &JobWorker{
		cfg:          cfg,
		cancelSignal: make(chan struct{}),
		done:         make(chan struct{}),
		queuedAt:     time.Now(),
	}
}

// EndTime returns create-time + timeout. A non-positive timeout means no
// deadline and yields the zero time; a sum that wraps around is clamped to a
// far-future time.
func (w *JobWorker) EndTime() time.Time {
	if w.cfg.Timeout <= 0 {
		return time.Time{} // no deadline
	}
	end := w.cfg.CreateTime.Add(w.cfg.Timeout)
	if end.Before(w.cfg.CreateTime) { // overflow wrapped around
		return time.Unix(1<<62, 0)
	}
	return end
}

func (w *JobWorker) JobID() common.JobID         { return w.cfg.JobID }
func (w *JobWorker) SessionID() common.SessionID { return w.cfg.SessionID }
func (w *JobWorker) OriginNode() common.NodeID   { return w.cfg.OriginNode }
func (w *JobWorker) Internal() bool              { return w.cfg.Internal }
func (w *JobWorker) ExecutorName() string        { return w.cfg.ExecutorName }

func (w *JobWorker) State() JobWorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *JobWorker) setState(s JobWorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// MarkQueued fires OnQueued; called by the scheduler immediately after
// construction, before submission to a pool.
func (w *JobWorker) MarkQueued() {
	w.setState(EJobWorkerState.Queued())
	if w.cfg.Listeners.OnQueued != nil {
		w.cfg.Listeners.OnQueued(w)
	}
}

// Run executes the job: reserves partitions, invokes the deployment, and
// finishes, reporting the result via the Messenger. It blocks until the job
// finishes or is cancelled. Callers run this on a pool goroutine (or, for
// internal jobs, on the caller's own goroutine per §4.E step 7).
func (w *JobWorker) Run(ctx context.Context) {
	defer w.closeDone()

	w.setState(EJobWorkerState.Started())
	if w.cfg.Listeners.OnStarted != nil {
		w.cfg.Listeners.OnStarted(w)
	}

	if w.cfg.Reservation != nil && !w.cfg.Reservation.Reserve() {
		w.finish(nil, common.NewGridError(common.EErrorKind.PartitionsLost(), "partition reservation failed"))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.watchCancel(cancel)

	result, err := w.cfg.Deployment.Run(runCtx, w.cfg.JobAttrs)
	w.finish(result, err)
}

// watchCancel waits for a cooperative cancel signal and propagates it to
// runCtx, then waits up to the configured interrupt timeout for the run to
// finish. Go has no forcible-interrupt primitive, so when that timeout
// elapses the run is not interrupted and nothing is logged or reported: the
// watcher simply stops waiting, and a deployment that ignores ctx.Done()
// keeps running.
func (w *JobWorker) watchCancel(cancel context.CancelFunc) {
	select {
	case <-w.cancelSignal:
		cancel()
	case <-w.done:
		return
	}

	timeoutMs := int64(common.DefaultComputeJobWorkerInterruptTimeoutMillis)
	if w.cfg.Config != nil {
		timeoutMs = w.cfg.Config.ComputeJobWorkerInterruptTimeoutMillis()
	}
	select {
	case <-w.done:
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		// Grace period elapsed without the run goroutine observing the
		// cooperative cancel; nothing further we can do from here.
	}
}

func (w *JobWorker) closeDone() {
	w.doneOnce.Do(func() { close(w.done) })
}

// RejectBeforeRun finishes the worker without ever invoking the deployment,
// used by the scheduler when it determines before activation that the job
// must not run at all (already cancelled, origin node gone) — §4.E
// onBeforeActivate.
func (w *JobWorker) RejectBeforeRun(err error) {
	defer w.closeDone()
	w.mu.Lock()
	w.cancelRequested = true
	w.mu.Unlock()
	w.cancelOnce.Do(func() { close(w.cancelSignal) })
	w.finish(nil, err)
}

// Cancel records cancellation and issues the cooperative cancel signal.
func (w *JobWorker) Cancel(systemInitiated bool) {
	w.mu.Lock()
	w.cancelRequested = true
	w.systemInitiated = systemInitiated
	w.mu.Unlock()
	w.cancelOnce.Do(func() { close(w.cancelSignal) })
}

// MasterNodeLeft is invoked when the task originator departs the cluster.
// The worker attempts to abort early; its result (if any) must not be sent,
// since the node that would receive it is gone. It returns true if the
// worker will self-terminate (so the scheduler should not also issue a hard
// cancel).
func (w *JobWorker) MasterNodeLeft() bool {
	w.mu.Lock()
	w.responseSuppressed = true
	w.mu.Unlock()
	w.Cancel(true)
	return true
}

// Hold voluntarily suspends the worker while it waits on an async
// dependency; idempotent, and returns false if the job is no longer active
// (concurrent finish).
func (w *JobWorker) Hold() bool {
	w.mu.Lock()
	if w.state != EJobWorkerState.Started() {
		w.mu.Unlock()
		return w.state == EJobWorkerState.Held()
	}
	w.state = EJobWorkerState.Held()
	w.mu.Unlock()
	if w.cfg.Listeners.OnHeld != nil {
		w.cfg.Listeners.OnHeld(w)
	}
	return true
}

func (w *JobWorker) Unhold() bool {
	w.mu.Lock()
	if w.state != EJobWorkerState.Held() {
		w.mu.Unlock()
		return false
	}
	w.state = EJobWorkerState.Started()
	w.mu.Unlock()
	if w.cfg.Listeners.OnUnheld != nil {
		w.cfg.Listeners.OnUnheld(w)
	}
	return true
}

// finish releases the deployment (once), releases the partition reservation,
// records performance stats, sends the result, and emits OnFinished — in
// that order, matching §4.C's "on finish" contract.
func (w *JobWorker) finish(result any, err error) {
	w.setState(EJobWorkerState.Finishing())

	w.mu.Lock()
	cancelled := w.cancelRequested
	w.mu.Unlock()

	if w.cfg.Listeners.OnBeforeResponseSent != nil {
		w.cfg.Listeners.OnBeforeResponseSent(w, result, err)
	}

	w.releaseDeployment()
	w.releaseReservation()

	if w.cfg.PerfStats != nil {
		now := time.Now()
		w.cfg.PerfStats.RecordQueuedDuration(w.cfg.JobID, w.cfg.CreateTime.Sub(w.queuedAt))
		w.cfg.PerfStats.RecordExecuteDuration(w.cfg.JobID, now.Sub(w.cfg.CreateTime))
	}

	w.sendResult(result, err)

	if cancelled {
		w.setState(EJobWorkerState.Cancelled())
	} else {
		w.setState(EJobWorkerState.Finished())
	}

	if w.cfg.Listeners.OnFinished != nil {
		w.cfg.Listeners.OnFinished(w)
	}
}

// sendResult ships the outcome back to the originator on the per-job
// response topic, using the ordered channel when full session support is
// enabled (§4.C "output path"). If the origin node already left the cluster
// (MasterNodeLeft), the send is suppressed: there is no one to tell.
func (w *JobWorker) sendResult(result any, err error) {
	w.mu.Lock()
	suppressed := w.responseSuppressed
	w.mu.Unlock()
	if suppressed {
		replyErr := common.NewGridError(common.EErrorKind.JobReplyFailed(), "origin node left the cluster; result not sent")
		common.LogToJobLogWithPrefix(w.cfg.JobID.String()+": "+replyErr.Error(), common.ELogLevel.Warning())
		return
	}
	if w.cfg.Messenger == nil {
		return
	}
	topic := common.JobResponseTopic(w.cfg.JobID, w.cfg.OriginNode)
	payload := struct {
		Result any
		Err    error
	}{result, err}

	var sendErr error
	if w.cfg.SessionFullSupport {
		sendErr = w.cfg.Messenger.SendOrdered(w.cfg.OriginNode, topic, payload, 0, false)
	} else {
		sendErr = w.cfg.Messenger.SendUnordered(w.cfg.OriginNode, topic, payload)
	}
	if sendErr != nil {
		replyErr := common.WrapGridError(common.EErrorKind.JobReplyFailed(), "failed to send job result to origin node", sendErr)
		common.LogToJobLogWithPrefix(w.cfg.JobID.String()+": "+replyErr.Error(), common.ELogLevel.Error())
	}
}

func (w *JobWorker) releaseDeployment() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deploymentReleased || w.cfg.Deployment == nil {
		return
	}
	w.deploymentReleased = true
	w.cfg.Deployment.Release()
}

func (w *JobWorker) releaseReservation() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reservationReleased || w.cfg.Reservation == nil {
		return
	}
	w.reservationReleased = true
	w.cfg.Reservation.Release()
}

// Done returns a channel closed once the worker's Run has returned.
func (w *JobWorker) Done() <-chan struct{} { return w.done }
