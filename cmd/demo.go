package cmd

import (
	"context"
	"errors"

	"github.com/ignite-grid/compute-core/common"
	"github.com/ignite-grid/compute-core/jobsAdmin"
	"github.com/ignite-grid/compute-core/ste"
)

// demoEnv is the single in-process cluster gridctl drives: one local node, a
// fake Messenger/Cluster pair, a deployment registry seeded with a couple of
// built-in tasks, and the Scheduler itself. A real deployment wires these
// collaborators to an actual transport and class-loader; gridctl's fakes
// exist purely so the scheduler can be exercised end to end from the CLI,
// all within one process and one `gridctl serve` invocation.
type demoEnv struct {
	local       common.NodeID
	messenger   *common.FakeMessenger
	cluster     *common.FakeCluster
	deployments *common.FakeDeploymentRegistry
	partitions  *common.PartitionTable
	config      common.DistributedConfig
	scheduler   *jobsAdmin.Scheduler
}

// newDemoEnv builds a fresh in-process cluster and registers the sample
// tasks ("echo" and "fail") that `submit` can target by name.
func newDemoEnv() *demoEnv {
	local := common.NewNodeID()
	messenger := common.NewFakeMessenger(local)
	cluster := common.NewFakeCluster(local)
	deployments := common.NewFakeDeploymentRegistry()
	partitions := common.NewPartitionTable()
	config := common.NewDistributedConfig()

	deployments.Register(common.NewFakeDeployment("echo", "builtin", func(ctx context.Context, jobAttrs map[string]any) (any, error) {
		return jobAttrs, nil
	}))
	deployments.Register(common.NewFakeDeployment("fail", "builtin", func(ctx context.Context, jobAttrs map[string]any) (any, error) {
		return nil, errors.New("task requested a failure")
	}))

	// Collision admission is wired through even in this single-node demo:
	// the always-activate policy makes the same decision onBeforeActivate
	// would without it, but it exercises the CollisionPolicy SPI (passive
	// insertion, pass triggering, Activate()) end to end from the CLI.
	scheduler := jobsAdmin.NewScheduler(jobsAdmin.SchedulerOptions{
		Messenger:   messenger,
		Cluster:     cluster,
		Deployments: deployments,
		Config:      config,
		Partitions:  partitions,
		Policy:      ste.NewGuardedCollisionPolicy(ste.NewAlwaysActivatePolicy()),
	})
	scheduler.Start()

	return &demoEnv{
		local:       local,
		messenger:   messenger,
		cluster:     cluster,
		deployments: deployments,
		partitions:  partitions,
		config:      config,
		scheduler:   scheduler,
	}
}

// jobResult is what submitAndWait receives back over the per-job response
// topic, mirroring the {Result, Err} struct JobWorker.sendResult ships.
type jobResult struct {
	Result any
	Err    error
}

// submitAndWait posts an execute-request for taskName through env's fake
// messenger and blocks until the scheduler replies on the job's response
// topic, or ctx is done first.
func submitAndWait(ctx context.Context, env *demoEnv, taskName string, jobAttrs map[string]any) (common.JobID, jobResult, error) {
	jobID := common.NewJobID()
	sessionID := common.NewSessionID()

	replies := make(chan jobResult, 1)
	topic := common.JobResponseTopic(jobID, env.local)
	env.messenger.AddListener(topic, func(_ common.NodeID, payload any) {
		// JobWorker.sendResult ships an anonymous struct with the same
		// shape as jobResult; decode it structurally since the two types
		// aren't directly assignable across packages. A request rejected
		// before a worker ever existed (e.g. no matching deployment) ships
		// a bare error instead, from the scheduler's sendErrorResponse.
		switch v := payload.(type) {
		case error:
			replies <- jobResult{Err: v}
		default:
			if r, ok := decodeJobResult(v); ok {
				replies <- r
			}
		}
	})

	req := jobsAdmin.ExecuteRequest{
		SessionID:     sessionID,
		JobID:         jobID,
		TaskName:      taskName,
		ClassName:     taskName,
		ClassLoaderID: "builtin",
		JobAttrs:      jobAttrs,
	}
	env.messenger.Deliver(common.TopicJob, env.local, req)

	select {
	case r := <-replies:
		return jobID, r, nil
	case <-ctx.Done():
		return jobID, jobResult{}, ctx.Err()
	}
}

// decodeJobResult adapts the anonymous {Result any; Err error} struct
// JobWorker.sendResult constructs into jobResult via field access; the two
// types are structurally identical but not assignable directly across
// packages since the struct literal has no name.
func decodeJobResult(payload any) (jobResult, bool) {
	v, ok := payload.(struct {
		Result any
		Err    error
	})
	if !ok {
		return jobResult{}, false
	}
	return jobResult{Result: v.Result, Err: v.Err}, true
}
