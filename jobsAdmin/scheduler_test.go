package jobsAdmin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite-grid/compute-core/common"
	"github.com/ignite-grid/compute-core/ste"
	"github.com/stretchr/testify/assert"
)

func newTestScheduler(t *testing.T, deployments *common.FakeDeploymentRegistry) (*Scheduler, *common.FakeMessenger, *common.FakeCluster) {
	t.Helper()
	local := common.NewNodeID()
	messenger := common.NewFakeMessenger(local)
	cluster := common.NewFakeCluster(local)

	s := NewScheduler(SchedulerOptions{
		Messenger:   messenger,
		Cluster:     cluster,
		Deployments: deployments,
		Config:      common.NewDistributedConfig(),
		Partitions:  common.NewPartitionTable(),
	})
	s.Start()
	return s, messenger, cluster
}

// awaitResult subscribes to a job's response topic before posting req, then
// blocks until a reply struct arrives or the timeout elapses.
func awaitResult(t *testing.T, messenger *common.FakeMessenger, local common.NodeID, req ExecuteRequest) (any, error, bool) {
	t.Helper()
	type reply struct {
		Result any
		Err    error
	}
	got := make(chan reply, 1)
	topic := common.JobResponseTopic(req.JobID, local)
	messenger.AddListener(topic, func(_ common.NodeID, payload any) {
		switch v := payload.(type) {
		case struct {
			Result any
			Err    error
		}:
			got <- reply(v)
		case error:
			// sendErrorResponse ships a bare error for requests rejected
			// before a worker ever exists to call sendResult.
			got <- reply{Err: v}
		}
	})

	messenger.Deliver(common.TopicJob, local, req)

	select {
	case r := <-got:
		return r.Result, r.Err, true
	case <-time.After(2 * time.Second):
		return nil, nil, false
	}
}

func TestSchedulerRunsExecuteRequestAndRepliesSuccess(t *testing.T) {
	a := assert.New(t)
	deployments := common.NewFakeDeploymentRegistry()
	deployments.Register(common.NewFakeDeployment("echo", "builtin", func(ctx context.Context, attrs map[string]any) (any, error) {
		return attrs["v"], nil
	}))

	s, messenger, _ := newTestScheduler(t, deployments)
	defer s.Stop(false)

	req := ExecuteRequest{
		SessionID:     common.NewSessionID(),
		JobID:         common.NewJobID(),
		TaskName:      "echo",
		ClassName:     "echo",
		ClassLoaderID: "builtin",
		JobAttrs:      map[string]any{"v": 42},
	}

	result, err, ok := awaitResult(t, messenger, messenger.Self(), req)
	a.True(ok, "expected a reply before the timeout")
	a.NoError(err)
	a.Equal(42, result)

	c := s.Counters()
	a.Equal(int64(1), c.Activated)
	a.Equal(1, c.Finished)
}

func TestSchedulerRunsExecuteRequestAndRepliesFailure(t *testing.T) {
	a := assert.New(t)
	deployments := common.NewFakeDeploymentRegistry()
	deployments.Register(common.NewFakeDeployment("fail", "builtin", func(ctx context.Context, attrs map[string]any) (any, error) {
		return nil, errors.New("boom")
	}))

	s, messenger, _ := newTestScheduler(t, deployments)
	defer s.Stop(false)

	req := ExecuteRequest{
		SessionID:     common.NewSessionID(),
		JobID:         common.NewJobID(),
		TaskName:      "fail",
		ClassName:     "fail",
		ClassLoaderID: "builtin",
		JobAttrs:      map[string]any{},
	}

	_, err, ok := awaitResult(t, messenger, messenger.Self(), req)
	a.True(ok)
	a.Error(err)
}

func TestSchedulerRejectsExecuteRequestForMissingDeployment(t *testing.T) {
	a := assert.New(t)
	deployments := common.NewFakeDeploymentRegistry()

	s, messenger, _ := newTestScheduler(t, deployments)
	defer s.Stop(false)

	req := ExecuteRequest{
		SessionID:     common.NewSessionID(),
		JobID:         common.NewJobID(),
		TaskName:      "missing",
		ClassName:     "missing",
		ClassLoaderID: "builtin",
	}

	_, err, ok := awaitResult(t, messenger, messenger.Self(), req)
	a.True(ok)
	a.Error(err)
	gerr, ok := err.(*common.GridError)
	a.True(ok)
	a.Equal(common.EErrorKind.DeploymentMissing(), gerr.Kind())
}

func TestSchedulerDedupesRedeliveredExecuteRequest(t *testing.T) {
	a := assert.New(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	deployments := common.NewFakeDeploymentRegistry()
	deployments.Register(common.NewFakeDeployment("slow", "builtin", func(ctx context.Context, attrs map[string]any) (any, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return "done", nil
	}))

	s, messenger, _ := newTestScheduler(t, deployments)
	defer s.Stop(false)

	req := ExecuteRequest{
		SessionID:     common.NewSessionID(),
		JobID:         common.NewJobID(),
		TaskName:      "slow",
		ClassName:     "slow",
		ClassLoaderID: "builtin",
		JobAttrs:      map[string]any{},
	}

	// A same-origin job is submitted to the pool (submitToPool is true when
	// origin == the local node), so the deployment runs on a pool goroutine
	// and this Deliver call returns as soon as it's been handed off.
	messenger.Deliver(common.TopicJob, messenger.Self(), req)
	<-started

	messenger.Deliver(common.TopicJob, messenger.Self(), req) // redelivery of the same job id
	a.Equal(int32(1), atomic.LoadInt32(&calls), "a redelivered execute-request must not invoke the deployment twice")
	a.Equal(1, s.Counters().Active)

	close(release)

	// Wait for the first (still in-flight) run to finish and clear dedupe.
	for i := 0; i < 100 && s.Counters().Active != 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	a.Equal(1, s.Counters().Finished)
}

func TestSchedulerCountersReflectLifecycle(t *testing.T) {
	a := assert.New(t)
	deployments := common.NewFakeDeploymentRegistry()
	deployments.Register(common.NewFakeDeployment("echo", "builtin", func(ctx context.Context, attrs map[string]any) (any, error) {
		return "ok", nil
	}))

	s, messenger, _ := newTestScheduler(t, deployments)
	defer s.Stop(false)

	for i := 0; i < 3; i++ {
		req := ExecuteRequest{
			SessionID:     common.NewSessionID(),
			JobID:         common.NewJobID(),
			TaskName:      "echo",
			ClassName:     "echo",
			ClassLoaderID: "builtin",
			JobAttrs:      map[string]any{},
		}
		_, _, ok := awaitResult(t, messenger, messenger.Self(), req)
		a.True(ok)
	}

	c := s.Counters()
	a.Equal(int64(3), c.Activated)
	a.Equal(3, c.Finished)
	a.Equal(0, c.Active)
}

// -------------------------------------------------------------------------
// Scenario tests (SPEC_FULL §8, S1-S3)
// -------------------------------------------------------------------------

// firstNCollisionPolicy activates the first n passive contexts it is ever
// handed (tracked cumulatively across passes, since each pass only observes
// whatever is passive at that instant) and rejects the rest. It exists so
// scheduler_test.go can exercise the CollisionPolicy SPI end to end, not just
// define it.
type firstNCollisionPolicy struct {
	mu        sync.Mutex
	remaining int
}

func (p *firstNCollisionPolicy) OnCollision(passive, _, _ ste.CollisionView) {
	for {
		ctx, ok := passive.Next()
		if !ok {
			return
		}
		p.mu.Lock()
		allow := p.remaining > 0
		if allow {
			p.remaining--
		}
		p.mu.Unlock()
		if allow {
			if !ctx.Activate() {
				p.mu.Lock()
				p.remaining++
				p.mu.Unlock()
			}
			continue
		}
		ctx.Cancel()
	}
}

func (p *firstNCollisionPolicy) SetExternalListener(func()) {}
func (p *firstNCollisionPolicy) UnsetExternalListener()     {}

// TestSchedulerCollisionPolicyAdmitsFirstNAndRejectsRest covers S1: four
// jobs submitted under a policy that admits only the first two; the rest
// finish with ExecutionRejected and cancelReqs records both, flagged
// non-system.
func TestSchedulerCollisionPolicyAdmitsFirstNAndRejectsRest(t *testing.T) {
	a := assert.New(t)
	deployments := common.NewFakeDeploymentRegistry()
	deployments.Register(common.NewFakeDeployment("echo", "builtin", func(ctx context.Context, attrs map[string]any) (any, error) {
		return attrs["v"], nil
	}))

	local := common.NewNodeID()
	messenger := common.NewFakeMessenger(local)
	cluster := common.NewFakeCluster(local)
	policy := &firstNCollisionPolicy{remaining: 2}

	s := NewScheduler(SchedulerOptions{
		Messenger:       messenger,
		Cluster:         cluster,
		Deployments:     deployments,
		Config:          common.NewDistributedConfig(),
		Partitions:      common.NewPartitionTable(),
		Policy:          policy,
		DefaultPoolSize: 1,
	})
	s.Start()
	defer s.Stop(false)

	var rejectedIDs []common.JobID
	activated := 0
	for i := 0; i < 4; i++ {
		req := ExecuteRequest{
			SessionID:     common.NewSessionID(),
			JobID:         common.NewJobID(),
			TaskName:      "echo",
			ClassName:     "echo",
			ClassLoaderID: "builtin",
			JobAttrs:      map[string]any{"v": i},
		}
		_, err, ok := awaitResult(t, messenger, local, req)
		a.True(ok, "job %d never replied", i)
		if err != nil {
			gerr, isGridErr := err.(*common.GridError)
			a.True(isGridErr)
			a.Equal(common.EErrorKind.ExecutionRejected(), gerr.Kind())
			rejectedIDs = append(rejectedIDs, req.JobID)
		} else {
			activated++
		}
	}

	a.Equal(2, activated)
	a.Len(rejectedIDs, 2)
	for _, id := range rejectedIDs {
		v, ok := s.cancelReqs.Get(cancelReqKey(&id, nil))
		a.True(ok, "expected cancelReqs to record %s", id)
		a.False(v, "collision-driven rejections are system-initiated=false (non-system)")
	}
}

// noopCollisionPolicy never activates anything on its own; used to hold a
// job in passive under test control so a cancel-request can race it.
type noopCollisionPolicy struct{}

func (noopCollisionPolicy) OnCollision(_, _, _ ste.CollisionView) {}
func (noopCollisionPolicy) SetExternalListener(func())            {}
func (noopCollisionPolicy) UnsetExternalListener()                {}

// TestSchedulerCancelBeforeActivateRejectsWithoutRunning covers S2: a
// cancel-request for J's session arrives while J still sits in passive (the
// policy never got around to activating it); J must finish with
// ExecutionRejected and the deployment must never run.
func TestSchedulerCancelBeforeActivateRejectsWithoutRunning(t *testing.T) {
	a := assert.New(t)
	var ran int32
	deployments := common.NewFakeDeploymentRegistry()
	deployments.Register(common.NewFakeDeployment("echo", "builtin", func(ctx context.Context, attrs map[string]any) (any, error) {
		atomic.AddInt32(&ran, 1)
		return attrs["v"], nil
	}))

	local := common.NewNodeID()
	messenger := common.NewFakeMessenger(local)
	cluster := common.NewFakeCluster(local)

	s := NewScheduler(SchedulerOptions{
		Messenger:   messenger,
		Cluster:     cluster,
		Deployments: deployments,
		Config:      common.NewDistributedConfig(),
		Partitions:  common.NewPartitionTable(),
		Policy:      noopCollisionPolicy{},
	})
	s.Start()
	defer s.Stop(false)

	sessionID := common.NewSessionID()
	req := ExecuteRequest{
		SessionID:     sessionID,
		JobID:         common.NewJobID(),
		TaskName:      "echo",
		ClassName:     "echo",
		ClassLoaderID: "builtin",
		JobAttrs:      map[string]any{"v": 1},
	}

	got := make(chan error, 1)
	topic := common.JobResponseTopic(req.JobID, local)
	messenger.AddListener(topic, func(_ common.NodeID, payload any) {
		if e, ok := payload.(error); ok {
			got <- e
			return
		}
		if r, ok := payload.(struct {
			Result any
			Err    error
		}); ok {
			got <- r.Err
		}
	})

	// J lands in passive; the no-op policy never activates it.
	messenger.Deliver(common.TopicJob, local, req)
	a.Equal(1, s.Counters().Passive)

	// Cancel arrives before any collision pass gets a chance to activate J.
	messenger.Deliver(common.TopicJobCancel, local, CancelRequest{SessionID: &sessionID, SystemInitiated: false})

	select {
	case err := <-got:
		gerr, ok := err.(*common.GridError)
		a.True(ok)
		a.Equal(common.EErrorKind.ExecutionRejected(), gerr.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reply before the timeout")
	}

	a.Equal(int32(0), atomic.LoadInt32(&ran), "a cancelled-before-activation job must never invoke the deployment")

	// A subsequent pass finds nothing left to activate.
	s.runCollisionPass()
	a.Equal(0, s.Counters().Passive)
	a.Equal(0, s.Counters().Active)
}

// TestSchedulerMasterNodeLeftSuppressesResponse covers S3: the origin node
// leaves while J is active; J moves to cancelled, its worker observes
// MasterNodeLeft, and no response message is ever sent for it.
func TestSchedulerMasterNodeLeftSuppressesResponse(t *testing.T) {
	a := assert.New(t)
	local := common.NewNodeID()
	remote := common.NewNodeID()
	messenger := common.NewFakeMessenger(local)
	cluster := common.NewFakeCluster(local, remote)

	started := make(chan struct{})
	release := make(chan struct{})
	deployments := common.NewFakeDeploymentRegistry()
	deployments.Register(common.NewFakeDeployment("slow", "builtin", func(ctx context.Context, attrs map[string]any) (any, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return "done", nil
		}
	}))

	s := NewScheduler(SchedulerOptions{
		Messenger:   messenger,
		Cluster:     cluster,
		Deployments: deployments,
		Config:      common.NewDistributedConfig(),
		Partitions:  common.NewPartitionTable(),
	})
	s.Start()
	defer s.Stop(false)

	req := ExecuteRequest{
		SessionID:     common.NewSessionID(),
		JobID:         common.NewJobID(),
		TaskName:      "slow",
		ClassName:     "slow",
		ClassLoaderID: "builtin",
		Timeout:       10 * time.Second,
		JobAttrs:      map[string]any{},
	}

	// origin != local, so dispatch runs synchronously on this call's
	// goroutine; run it in the background so the test can act while J is
	// still active.
	delivered := make(chan struct{})
	go func() {
		messenger.Deliver(common.TopicJob, remote, req)
		close(delivered)
	}()

	<-started
	a.Equal(1, s.Counters().Active)

	cluster.MarkLeft(remote)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("job never finished after its origin node left")
	}

	c := s.Counters()
	a.Equal(0, c.Active)

	topic := common.JobResponseTopic(req.JobID, remote)
	for _, sent := range messenger.Sent() {
		a.NotEqual(topic, sent.Topic, "no response may be sent once the origin node has left")
	}
}
