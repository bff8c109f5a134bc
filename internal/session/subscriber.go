// Package session provides encounter lifecycle management: it owns the live
// encounters, serialises access to each one, fans combat-log events out to
// subscribers, dispatches scripted effect hooks, and archives finished
// encounters.
package session

import (
	"fmt"
	"sync"

	"github.com/hollowhost/hollowhost/internal/game/encounter"
)

// Subscriber routes combat-log events to a Go channel, bridging the session
// layer to a transport (CLI renderer, stream, test harness).
type Subscriber struct {
	id     string
	events chan encounter.Event
	mu     sync.Mutex
	closed bool
}

// NewSubscriber creates a Subscriber for the given encounter.
//
// Postcondition: Returns a Subscriber with an open events channel.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Subscriber{
		id:     id,
		events: make(chan encounter.Event, bufferSize),
	}
}

// ID returns the subscribed encounter's identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Push enqueues an event for the consumer.
//
// Postcondition: The event is enqueued, or an error if the subscriber is
// closed or its buffer is full. A slow consumer loses events rather than
// stalling combat resolution.
func (s *Subscriber) Push(ev encounter.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber for %s is closed", s.id)
	}
	select {
	case s.events <- ev:
		return nil
	default:
		return fmt.Errorf("subscriber for %s event buffer full", s.id)
	}
}

// Events returns the read-only events channel.
func (s *Subscriber) Events() <-chan encounter.Event {
	return s.events
}

// Close marks the subscriber as closed and closes the events channel.
//
// Postcondition: The events channel is closed. Further Push calls return an error.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// IsClosed reports whether the subscriber has been closed.
func (s *Subscriber) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
