package events

import (
	"context"
	"sync"
)

// Publisher delivers allocation events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt AllocationEvent) error
	Close() error
}

// NopPublisher discards every event. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, AllocationEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []AllocationEvent
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(_ context.Context, evt AllocationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

// Close implements Publisher.
func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []AllocationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]AllocationEvent, len(p.events))
	copy(out, p.events)
	return out
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*MemoryPublisher)(nil)
	_ Publisher = (*AMQPPublisher)(nil)
)
