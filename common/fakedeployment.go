package common

import (
	"context"
	"sync"
	"sync/atomic"
)

// FakeDeployment is an in-process Deployment wrapping a plain function,
// used by scheduler tests and the `cmd/` demo in place of a real class-loader
// resolution. Grounded on the teacher's in-process fakes for narrow
// collaborator interfaces.
type FakeDeployment struct {
	name   string
	loader string
	run    func(ctx context.Context, jobAttrs map[string]any) (any, error)
	refs   atomic.Int64
}

func NewFakeDeployment(name, loaderID string, run func(ctx context.Context, jobAttrs map[string]any) (any, error)) *FakeDeployment {
	return &FakeDeployment{name: name, loader: loaderID, run: run}
}

func (d *FakeDeployment) Name() string { return d.name }

func (d *FakeDeployment) Acquire() { d.refs.Add(1) }

func (d *FakeDeployment) Release() { d.refs.Add(-1) }

// RefCount returns the current Acquire/Release balance, for tests asserting
// every resolution was paired with exactly one release.
func (d *FakeDeployment) RefCount() int64 { return d.refs.Load() }

func (d *FakeDeployment) Run(ctx context.Context, jobAttrs map[string]any) (any, error) {
	return d.run(ctx, jobAttrs)
}

// FakeDeploymentRegistry is an in-process DeploymentRegistry backed by a
// name-keyed and loaderID-keyed map, populated with Register.
type FakeDeploymentRegistry struct {
	mu         sync.RWMutex
	byName     map[string]*FakeDeployment
	byLoaderID map[string]*FakeDeployment
}

func NewFakeDeploymentRegistry() *FakeDeploymentRegistry {
	return &FakeDeploymentRegistry{
		byName:     make(map[string]*FakeDeployment),
		byLoaderID: make(map[string]*FakeDeployment),
	}
}

// Register makes d resolvable by both its name and its loader id.
func (r *FakeDeploymentRegistry) Register(d *FakeDeployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[d.name] = d
	if d.loader != "" {
		r.byLoaderID[d.loader] = d
	}
}

func (r *FakeDeploymentRegistry) Resolve(name string, forceLocal bool) (Deployment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return d, true
}

func (r *FakeDeploymentRegistry) ResolveByLoaderID(loaderID string) (Deployment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byLoaderID[loaderID]
	if !ok {
		return nil, false
	}
	return d, true
}
