package sync

import (
	stdsync "sync"

	"github.com/davin/easel/pkg/scene"
)

// Bus carries command envelopes between board participants. Publish sends a
// local envelope to every other participant; Subscribe registers a handler
// for envelopes published by others. A participant never receives its own
// publishes back through the bus.
type Bus interface {
	Publish(env scene.Envelope) error
	Subscribe(handler func(env scene.Envelope))
	Close() error
}

// MemoryBroker connects participants in the same process. Each participant
// takes its own endpoint; the broker fans published envelopes out to every
// endpoint except the one that sent them.
type MemoryBroker struct {
	mu        stdsync.RWMutex
	endpoints map[*memoryEndpoint]struct{}
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		endpoints: make(map[*memoryEndpoint]struct{}),
	}
}

// Endpoint registers a new participant and returns its bus.
func (b *MemoryBroker) Endpoint() Bus {
	ep := &memoryEndpoint{broker: b}

	b.mu.Lock()
	b.endpoints[ep] = struct{}{}
	b.mu.Unlock()

	return ep
}

func (b *MemoryBroker) dispatch(sender *memoryEndpoint, env scene.Envelope) {
	b.mu.RLock()
	targets := make([]*memoryEndpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		if ep != sender {
			targets = append(targets, ep)
		}
	}
	b.mu.RUnlock()

	for _, ep := range targets {
		ep.deliver(env)
	}
}

func (b *MemoryBroker) remove(ep *memoryEndpoint) {
	b.mu.Lock()
	delete(b.endpoints, ep)
	b.mu.Unlock()
}

type memoryEndpoint struct {
	broker *MemoryBroker

	mu       stdsync.RWMutex
	handlers []func(env scene.Envelope)
	closed   bool
}

func (ep *memoryEndpoint) Publish(env scene.Envelope) error {
	ep.mu.RLock()
	closed := ep.closed
	ep.mu.RUnlock()

	if closed {
		return ErrBusClosed
	}

	ep.broker.dispatch(ep, env)
	return nil
}

func (ep *memoryEndpoint) Subscribe(handler func(env scene.Envelope)) {
	ep.mu.Lock()
	ep.handlers = append(ep.handlers, handler)
	ep.mu.Unlock()
}

func (ep *memoryEndpoint) deliver(env scene.Envelope) {
	ep.mu.RLock()
	handlers := make([]func(env scene.Envelope), len(ep.handlers))
	copy(handlers, ep.handlers)
	closed := ep.closed
	ep.mu.RUnlock()

	if closed {
		return
	}

	for _, handler := range handlers {
		handler(env)
	}
}

func (ep *memoryEndpoint) Close() error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	ep.mu.Unlock()

	ep.broker.remove(ep)
	return nil
}
