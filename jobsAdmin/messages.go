package jobsAdmin

import (
	"time"

	"github.com/ignite-grid/compute-core/common"
)

// ExecuteRequest is the serialized execute-request payload described in
// §4.E: {session-id, job-id, task name, class name, deployment mode,
// class-loader id, loader participants, create time, timeout, topology
// version, siblings, session-attrs, job-attrs, executor-name, cacheIds[],
// partitionId, internal flag, session-full-support flag, topology
// predicate}. Deserialization of the opaque payloads (siblings, session
// attrs, topology predicate) is out of scope (§1); they are carried as raw
// bytes for the deployment's own class loader to decode.
type ExecuteRequest struct {
	SessionID     common.SessionID
	JobID         common.JobID
	TaskName      string
	ClassName     string
	ForceLocal    bool
	ClassLoaderID string

	CreateTime      time.Time
	Timeout         time.Duration
	TopologyVersion int64

	SiblingsRaw          []byte
	SessionAttrsRaw      []byte
	TopologyPredicateRaw []byte
	JobAttrs             map[string]any

	ExecutorName       string
	CacheIDs           []string
	PartitionID        int32
	Internal           bool
	SessionFullSupport bool
}

// CancelRequest is {session-id or job-id, system flag} from §4.E
// "Cancel-request processing". Exactly one of JobID/SessionID is set.
type CancelRequest struct {
	JobID           *common.JobID
	SessionID       *common.SessionID
	SystemInitiated bool
}

// cancelReqKey derives the BoundedOrderedMap key used for cancelReqs: job-id
// if present, else session-id, per §3's "bounded insertion-ordered map from
// Job-or-Session ID to system-initiated? boolean".
func cancelReqKey(job *common.JobID, session *common.SessionID) string {
	if job != nil {
		return "job:" + job.String()
	}
	if session != nil {
		return "session:" + session.String()
	}
	return ""
}
