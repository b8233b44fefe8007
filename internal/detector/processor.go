package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jimbolo/convtrack/internal/gate"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/internal/report"
	"github.com/jimbolo/convtrack/internal/score"
	"github.com/jimbolo/convtrack/pkg/models"
)

// NewEventID builds "<source>-<type>-<unix millis>-<random>".
func NewEventID(event *models.TrackingEvent) string {
	return fmt.Sprintf("%s-%s-%d-%s", event.Source, event.Type, event.Timestamp.UnixMilli(), uuid.NewString()[:8])
}

// Process scores one event, records it in history, gates it and reports it
// when accepted. It implements worker.Processor.
func (d *Detector) Process(ctx context.Context, event models.TrackingEvent) error {
	if event.ID == "" {
		event.ID = NewEventID(&event)
	}
	event.ConfidenceScore = score.Score(&event)
	d.history.Append(event)

	l := logger.L().With("event_id", event.ID, "source", event.Source, "score", event.ConfidenceScore)
	decision := d.gate.Decide(&event)
	switch decision.Reason {
	case gate.ReasonAccepted:
	case gate.ReasonBelowThreshold:
		l.Debug("Event below confidence threshold")
		return nil
	case gate.ReasonDuplicate:
		l.Debug("Duplicate purchase within dedup window", "order_id", event.OrderID())
		return nil
	default:
		l.Debug("Event rejected", "reason", decision.Reason)
		return nil
	}

	l.Info("Purchase accepted, reporting conversion", "order_id", event.OrderID())
	err := d.reporter.Report(ctx, event)
	if errors.Is(err, report.ErrSinkNotConfigured) {
		return nil
	}
	// Dispatch failures are retried by the reporter's scheduler.
	if err != nil {
		l.Warn("First conversion attempt failed, retry scheduled", "error", err)
	}
	return nil
}
