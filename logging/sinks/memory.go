package sinks

import (
	"context"
	"sync"

	"voxelrift/logging"
)

// MemorySink retains events in memory for tests and the replay validator.
type MemorySink struct {
	mu     sync.RWMutex
	events []logging.Event
}

// NewMemorySink constructs an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: make([]logging.Event, 0)}
}

// Write satisfies logging.Sink.
func (s *MemorySink) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything written so far.
func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]logging.Event, len(s.events))
	copy(copied, s.events)
	return copied
}

// Reset discards retained events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}

// Close satisfies logging.Sink.
func (s *MemorySink) Close(context.Context) error { return nil }
