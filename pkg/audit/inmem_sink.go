package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemorySink implements Sink using in-memory storage
type InMemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemorySink creates a new in-memory audit sink
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// Record appends an event
func (s *InMemorySink) Record(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of all recorded events in append order
func (s *InMemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Event, len(s.events))
	copy(result, s.events)
	return result
}

// EventsByCorrelationID returns all events tagged with the given correlation id
func (s *InMemorySink) EventsByCorrelationID(correlationID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Event
	for _, event := range s.events {
		if event.CorrelationID == correlationID {
			result = append(result, event)
		}
	}
	return result
}
