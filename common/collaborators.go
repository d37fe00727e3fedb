package common

import (
	"context"
	"time"
)

// Deployment is a resolved executable artifact (class name + class loader +
// user version) with reference counting, supplied by the host. The grid core
// only ever sees it through this narrow interface (§1 scope: class loading /
// code deployment is an external collaborator).
type Deployment interface {
	Name() string
	// Acquire bumps the reference count. Every successful resolution of a
	// Deployment must be paired with exactly one Release.
	Acquire()
	// Release drops the reference count. Safe to call more than once is NOT
	// guaranteed; callers (Job Worker) release exactly once on the finish
	// path.
	Release()
	// Run invokes the deployed artifact with the supplied job attributes,
	// returning its result or an error.
	Run(ctx context.Context, jobAttrs map[string]any) (any, error)
}

// DeploymentRegistry resolves a Deployment by name, falling back to scanning
// participants by class-loader id, per §4.E step 2.
type DeploymentRegistry interface {
	Resolve(name string, forceLocal bool) (Deployment, bool)
	ResolveByLoaderID(loaderID string) (Deployment, bool)
}

// Messenger is the ordered/unordered point-to-point transport the scheduler
// and worker consume (§6). Network transport and message framing are out of
// scope; this interface is the entire surface the grid core depends on.
type Messenger interface {
	AddListener(topic string, listener func(origin NodeID, payload any))
	RemoveListener(topic string, listener func(origin NodeID, payload any))
	SendUnordered(node NodeID, topic string, message any) error
	// SendOrdered guarantees per-(source,dest,topic) ordering; skipOnTimeout
	// drops the message instead of erroring once timeout elapses.
	SendOrdered(node NodeID, topic string, message any, timeout_ms int64, skipOnTimeout bool) error
	SendToGridTopic(node NodeID, topic string, message any) error
}

// Well-known topics (§6) — names only, no wire-level framing.
const (
	TopicJob         = "JOB"
	TopicJobCancel   = "JOB_CANCEL"
	TopicJobSiblings = "JOB_SIBLINGS"
	TopicTask        = "TASK"
)

// JobResponseTopic derives the per-job response topic TASK.sub(jobId, originNodeId).
func JobResponseTopic(job JobID, origin NodeID) string {
	return TopicTask + "." + job.String() + "." + origin.String()
}

// Cluster provides node presence, liveness, and join/leave events (§6,
// discovery/membership is out of scope beyond this interface).
type Cluster interface {
	IsAlive(node NodeID) bool
	Size() int
	LocalNode() NodeID
	// OnNodeLeftOrFailed registers a callback invoked once per departed node.
	OnNodeLeftOrFailed(callback func(node NodeID))
	// OnMetricsUpdated registers a callback invoked on every NodeMetricsUpdated event.
	OnMetricsUpdated(callback func())
}

// DistributedConfig exposes the one property the scheduler needs at runtime:
// the cooperative-cancel-to-interrupt grace period (§5, §6). Modeled as an
// interface injected at construction rather than a process-wide singleton,
// per the Open Question in §9.
type DistributedConfig interface {
	ComputeJobWorkerInterruptTimeoutMillis() int64
	SetComputeJobWorkerInterruptTimeoutMillis(ms int64)
}

// PartitionReservation is the pre-flight guard described in §4.F: reserve()
// must succeed before a worker runs user code, and release() is always
// called exactly once regardless of the reserve outcome. LastError reports
// the GridError recorded by a failed Reserve, if any.
type PartitionReservation interface {
	Reserve() bool
	Release()
	LastError() error
}

// PartitionSpec identifies one {cacheId, partitionId, topologyVersion} entry
// of a job's partition reservation list (§3).
type PartitionSpec struct {
	CacheID         string
	PartitionID     int32
	TopologyVersion int64
}

// PerformanceStatsSink records queued/execute timing for finished jobs (§4.C
// "records queued/execute times into the performance-statistics sink").
type PerformanceStatsSink interface {
	RecordQueuedDuration(job JobID, d time.Duration)
	RecordExecuteDuration(job JobID, d time.Duration)
}
