package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
)

// ErrStopped is returned by Enqueue once the queue has been stopped.
var ErrStopped = errors.New("event queue is stopped")

// EventQueue is the strict FIFO of tracking events waiting for processing.
// Enqueue never blocks; the queue grows as needed.
type EventQueue struct {
	mu          sync.Mutex
	events      []models.TrackingEvent
	persistPath string
	stopped     bool
}

// NewEventQueue creates a new event queue. When persistPath is set, pending
// events are saved there on Stop and reloaded on Start.
func NewEventQueue(persistPath string) *EventQueue {
	return &EventQueue{persistPath: persistPath}
}

// Enqueue appends an event to the tail of the queue.
func (eq *EventQueue) Enqueue(event models.TrackingEvent) error {
	eq.mu.Lock()
	if eq.stopped {
		eq.mu.Unlock()
		return fmt.Errorf("%w, dropping %s event", ErrStopped, event.Source)
	}
	eq.events = append(eq.events, event)
	depth := len(eq.events)
	eq.mu.Unlock()

	logger.L().Debug("Event queued", "source", event.Source, "type", event.Type, "queue_depth", depth)
	return nil
}

// Dequeue removes and returns the head of the queue. It reports false when
// the queue is empty.
func (eq *EventQueue) Dequeue() (models.TrackingEvent, bool) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if len(eq.events) == 0 {
		return models.TrackingEvent{}, false
	}
	event := eq.events[0]
	eq.events[0] = models.TrackingEvent{}
	eq.events = eq.events[1:]
	return event, true
}

// Len returns the number of pending events.
func (eq *EventQueue) Len() int {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return len(eq.events)
}

// Start loads events persisted by a previous Stop, ahead of anything
// already queued. A corrupt state file is logged and ignored.
func (eq *EventQueue) Start() error {
	if err := eq.loadState(); err != nil {
		logger.L().Error("Failed to load queue state, starting empty.", "error", err)
	} else {
		logger.L().Info("Event queue started", "persistence_path", eq.persistPath)
	}
	return nil
}

// Stop refuses further events and persists the pending ones. Pending events
// stay in memory; they are not flushed. Calling Stop again is a no-op.
func (eq *EventQueue) Stop() error {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if eq.stopped {
		return nil
	}
	eq.stopped = true

	if err := eq.saveState(); err != nil {
		logger.L().Error("Failed to save queue state during stop.", "error", err)
		return fmt.Errorf("failed to save queue state: %w", err)
	}
	logger.L().Info("Event queue stopped", "pending", len(eq.events))
	return nil
}

// --- Persistence Logic ---

func (eq *EventQueue) loadState() error {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if eq.persistPath == "" {
		logger.L().Debug("Queue persistence path not set, skipping load.")
		return nil
	}

	data, err := os.ReadFile(eq.persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.L().Info("Queue persistence file not found, starting fresh.", "path", eq.persistPath)
			return nil
		}
		return fmt.Errorf("failed to read queue state file '%s': %w", eq.persistPath, err)
	}
	if len(data) == 0 {
		return nil
	}

	var events []models.TrackingEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("failed to unmarshal queue state from '%s': %w", eq.persistPath, err)
	}
	eq.events = append(events, eq.events...)

	// The file is consumed so a later Stop/Start cycle does not replay it twice.
	if err := os.Remove(eq.persistPath); err != nil && !os.IsNotExist(err) {
		logger.L().Warn("Failed to remove consumed queue state file", "path", eq.persistPath, "error", err)
	}
	logger.L().Info("Loaded events from persistence.", "count", len(events), "path", eq.persistPath)
	return nil
}

// saveState must be called with eq.mu held.
func (eq *EventQueue) saveState() error {
	if eq.persistPath == "" {
		logger.L().Debug("Queue persistence path not set, skipping save.")
		return nil
	}

	events := eq.events
	if events == nil {
		events = []models.TrackingEvent{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue state: %w", err)
	}

	// Write atomically: write to temp file, then rename
	tempFile := eq.persistPath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary queue state file '%s': %w", tempFile, err)
	}
	if err := os.Rename(tempFile, eq.persistPath); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary queue state file to '%s': %w", eq.persistPath, err)
	}

	logger.L().Info("Persisted pending events.", "count", len(events), "path", eq.persistPath)
	return nil
}
