package audit

import (
	"context"
	"sync"
)

// Sink receives audit events. Record is fire-and-forget: implementations
// swallow their own failures (with a local log) and must never block the
// access decision that produced the event.
type Sink interface {
	Record(ctx context.Context, event *Event)
	Close() error
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) Record(ctx context.Context, event *Event) {}
func (NopSink) Close() error                             { return nil }

// MultiSink fans events out to multiple sinks
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that records to every given sink
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Record(ctx context.Context, event *Event) {
	for _, s := range m.sinks {
		s.Record(ctx, event)
	}
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MemorySink collects events in memory, for tests
type MemorySink struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemorySink creates an empty memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Record(ctx context.Context, event *Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MemorySink) Close() error { return nil }

// Events returns a snapshot of recorded events
func (m *MemorySink) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}
