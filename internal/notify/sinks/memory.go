package sinks

import (
	"context"
	"sync"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// MemorySink records events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []monitor.Event

	// Err, when set, is returned from every Send.
	Err error
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Send records the event.
func (s *MemorySink) Send(ctx context.Context, evt monitor.Event) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []monitor.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]monitor.Event, len(s.events))
	copy(out, s.events)
	return out
}
