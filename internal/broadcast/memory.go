package broadcast

import (
	"context"
	"sync"
)

// Bus is an in-process pub/sub channel shared by one or more memory
// adapters. Tests attach several adapters to one bus to simulate a
// multi-process deployment; a single-node deployment without Redis runs
// one adapter on its own bus.
type Bus struct {
	mu   sync.RWMutex
	subs []*MemoryAdapter
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// NewAdapter attaches a new adapter to the bus.
func (b *Bus) NewAdapter() *MemoryAdapter {
	a := &MemoryAdapter{bus: b}
	b.mu.Lock()
	b.subs = append(b.subs, a)
	b.mu.Unlock()
	return a
}

func (b *Bus) publish(env Envelope) {
	b.mu.RLock()
	subs := make([]*MemoryAdapter, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, a := range subs {
		a.deliver(env)
	}
}

func (b *Bus) remove(target *MemoryAdapter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.subs {
		if a == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// MemoryAdapter implements Adapter over an in-process Bus. Envelopes are
// delivered synchronously, including back to the publisher, matching the
// self-delivery contract of the Redis adapter.
type MemoryAdapter struct {
	bus *Bus

	mu      sync.RWMutex
	handler Handler
	closed  bool
}

// Publish delivers the envelope to every adapter on the bus.
func (a *MemoryAdapter) Publish(_ context.Context, env Envelope) error {
	a.bus.publish(env)
	return nil
}

// Subscribe registers the local delivery handler.
func (a *MemoryAdapter) Subscribe(h Handler) {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
}

// Close detaches the adapter from the bus.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.bus.remove(a)
	return nil
}

func (a *MemoryAdapter) deliver(env Envelope) {
	a.mu.RLock()
	h := a.handler
	closed := a.closed
	a.mu.RUnlock()
	if closed || h == nil {
		return
	}
	h(env)
}
