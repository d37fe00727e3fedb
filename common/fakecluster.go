package common

import "sync"

// FakeCluster is an in-process Cluster with a fixed node set and a manually
// driven liveness/membership model, used by scheduler tests and the `cmd/`
// demo in place of real discovery. Grounded on the teacher's in-process test
// doubles, generalized from a single-node JobUIHooks fake to a multi-node
// membership view.
type FakeCluster struct {
	mu sync.RWMutex

	local NodeID
	alive map[NodeID]bool

	leftListeners    []func(node NodeID)
	metricsListeners []func()
}

func NewFakeCluster(local NodeID, members ...NodeID) *FakeCluster {
	alive := make(map[NodeID]bool, len(members)+1)
	alive[local] = true
	for _, m := range members {
		alive[m] = true
	}
	return &FakeCluster{local: local, alive: alive}
}

func (c *FakeCluster) IsAlive(node NodeID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive[node]
}

func (c *FakeCluster) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, alive := range c.alive {
		if alive {
			n++
		}
	}
	return n
}

func (c *FakeCluster) LocalNode() NodeID {
	return c.local
}

func (c *FakeCluster) OnNodeLeftOrFailed(callback func(node NodeID)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leftListeners = append(c.leftListeners, callback)
}

func (c *FakeCluster) OnMetricsUpdated(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metricsListeners = append(c.metricsListeners, callback)
}

// MarkLeft flips node to not-alive and fires every OnNodeLeftOrFailed
// listener, simulating a departure or failure detection.
func (c *FakeCluster) MarkLeft(node NodeID) {
	c.mu.Lock()
	c.alive[node] = false
	listeners := append([]func(NodeID){}, c.leftListeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(node)
	}
}

// AddMember marks node alive, for tests simulating a join.
func (c *FakeCluster) AddMember(node NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive[node] = true
}

// FireMetricsUpdated invokes every OnMetricsUpdated listener once, as if a
// NodeMetricsUpdated event had arrived from node metrics exchange.
func (c *FakeCluster) FireMetricsUpdated() {
	c.mu.RLock()
	listeners := append([]func(){}, c.metricsListeners...)
	c.mu.RUnlock()
	for _, l := range listeners {
		l()
	}
}
