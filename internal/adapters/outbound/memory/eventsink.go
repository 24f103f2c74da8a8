package memory

import (
	"context"
	"sync"

	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink is an in-memory implementation of the EventSink port.
// It stores all published events for later inspection.
type EventSink struct {
	mu     sync.RWMutex
	events []outbound.Event
	closed bool

	// Callback for test assertions
	onPublish func(outbound.Event)
}

// NewEventSink creates a new in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{
		events: make([]outbound.Event, 0),
	}
}

// Publish stores the event in memory. Events published after Close are dropped.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.events = append(s.events, event)

	if s.onPublish != nil {
		s.onPublish(event)
	}

	return nil
}

// Close marks the sink as closed.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetEvents returns all published events.
func (s *EventSink) GetEvents() []outbound.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.Event, len(s.events))
	copy(result, s.events)
	return result
}

// GetSubmissionEvents returns all SubmissionEncodedEvents.
func (s *EventSink) GetSubmissionEvents() []outbound.SubmissionEncodedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.SubmissionEncodedEvent, 0)
	for _, e := range s.events {
		if se, ok := e.(outbound.SubmissionEncodedEvent); ok {
			result = append(result, se)
		}
	}
	return result
}

// SetOnPublish registers a callback invoked for every published event.
func (s *EventSink) SetOnPublish(fn func(outbound.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish = fn
}

// Clear removes all stored events.
func (s *EventSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]outbound.Event, 0)
}
