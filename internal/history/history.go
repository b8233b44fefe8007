// Package history keeps processed tracking events for deduplication and audit.
package history

import (
	"sync"
	"time"

	"github.com/jimbolo/convtrack/pkg/models"
)

// Store is an append-only log of processed events that only shrinks when
// pruned by age.
type Store struct {
	mu     sync.RWMutex
	events []models.TrackingEvent
}

// NewStore creates an empty history store.
func NewStore() *Store {
	return &Store{}
}

// Append records a processed event.
func (s *Store) Append(event models.TrackingEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

// HasDuplicate reports whether another event with the same non-empty order
// id was captured less than window away from event.
func (s *Store) HasDuplicate(event *models.TrackingEvent, window time.Duration) bool {
	orderID := event.OrderID()
	if orderID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.events {
		existing := &s.events[i]
		if existing.ID == event.ID || existing.OrderID() != orderID {
			continue
		}
		if absDuration(existing.Timestamp.Sub(event.Timestamp)) < window {
			return true
		}
	}
	return false
}

// Prune removes every event captured at or before cutoff and returns how
// many were removed.
func (s *Store) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	for _, e := range s.events {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(s.events) - len(kept)
	clear(s.events[len(kept):])
	s.events = kept
	return removed
}

// Len returns the number of retained events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Last returns a copy of the most recently appended event.
func (s *Store) Last() (models.TrackingEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return models.TrackingEvent{}, false
	}
	return s.events[len(s.events)-1], true
}

// Snapshot returns a copy of all retained events in append order.
func (s *Store) Snapshot() []models.TrackingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrackingEvent, len(s.events))
	copy(out, s.events)
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
