package common

import (
	"reflect"
	"sync"
)

// FakeMessenger is an in-process Messenger that loops messages straight back
// to listeners registered on the same instance, used by the scheduler's own
// tests and by the `cmd/` demo in place of a real cluster transport. Grounded
// on the teacher's own in-process test doubles for collaborator interfaces
// (e.g. zt_mockedlcm.go's function-field fake for JobUIHooks).
type FakeMessenger struct {
	mu        sync.RWMutex
	listeners map[string][]func(origin NodeID, payload any)
	self      NodeID

	mu2  sync.Mutex
	sent []FakeSentMessage
}

// FakeSentMessage records one call to Send{Unordered,Ordered,ToGridTopic},
// so tests can assert on what a worker or scheduler actually sent.
type FakeSentMessage struct {
	Node    NodeID
	Topic   string
	Message any
	Ordered bool
}

func NewFakeMessenger(self NodeID) *FakeMessenger {
	return &FakeMessenger{listeners: make(map[string][]func(NodeID, any)), self: self}
}

func (m *FakeMessenger) AddListener(topic string, listener func(origin NodeID, payload any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[topic] = append(m.listeners[topic], listener)
}

// RemoveListener drops the first registered listener whose code pointer
// matches listener's. Like the rest of the standard library's func-value
// handling, this can't distinguish two closures sharing the same code but
// different captured state; callers that need that should keep a dedicated
// wrapper per registration.
func (m *FakeMessenger) RemoveListener(topic string, listener func(origin NodeID, payload any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := reflect.ValueOf(listener).Pointer()
	fns := m.listeners[topic]
	for i, fn := range fns {
		if reflect.ValueOf(fn).Pointer() == target {
			m.listeners[topic] = append(fns[:i], fns[i+1:]...)
			return
		}
	}
}

func (m *FakeMessenger) dispatch(topic string, origin NodeID, payload any) {
	m.mu.RLock()
	fns := append([]func(NodeID, any){}, m.listeners[topic]...)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(origin, payload)
	}
}

func (m *FakeMessenger) record(node NodeID, topic string, message any, ordered bool) {
	m.mu2.Lock()
	m.sent = append(m.sent, FakeSentMessage{Node: node, Topic: topic, Message: message, Ordered: ordered})
	m.mu2.Unlock()
}

func (m *FakeMessenger) SendUnordered(node NodeID, topic string, message any) error {
	m.record(node, topic, message, false)
	m.dispatch(topic, m.self, message)
	return nil
}

func (m *FakeMessenger) SendOrdered(node NodeID, topic string, message any, _ int64, _ bool) error {
	m.record(node, topic, message, true)
	m.dispatch(topic, m.self, message)
	return nil
}

func (m *FakeMessenger) SendToGridTopic(node NodeID, topic string, message any) error {
	m.record(node, topic, message, false)
	m.dispatch(topic, m.self, message)
	return nil
}

// Self returns the node id this messenger was constructed with.
func (m *FakeMessenger) Self() NodeID { return m.self }

// Sent returns every message recorded so far, for test assertions.
func (m *FakeMessenger) Sent() []FakeSentMessage {
	m.mu2.Lock()
	defer m.mu2.Unlock()
	out := make([]FakeSentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Deliver injects origin -> payload as if it had arrived on topic, without
// going through Send*; used by tests driving the scheduler's listeners
// directly.
func (m *FakeMessenger) Deliver(topic string, origin NodeID, payload any) {
	m.dispatch(topic, origin, payload)
}
