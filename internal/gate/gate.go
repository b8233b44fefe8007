// Package gate decides whether a scored event becomes a conversion.
package gate

import (
	"time"

	"github.com/jimbolo/convtrack/internal/history"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Reason explains a gating decision.
type Reason string

const (
	ReasonAccepted       Reason = "accepted"
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonDuplicate      Reason = "duplicate"
	ReasonInvalidData    Reason = "invalid_data"
)

// Decision is the outcome of gating one event.
type Decision struct {
	Accepted bool
	Reason   Reason
}

// Gate applies the confidence threshold, the deduplication window and
// minimal data validation, in that order.
type Gate struct {
	threshold float64
	window    time.Duration
	history   *history.Store
}

// New creates a Gate that deduplicates against store.
func New(threshold float64, window time.Duration, store *history.Store) *Gate {
	return &Gate{threshold: threshold, window: window, history: store}
}

// Decide gates event. The event must already be scored.
func (g *Gate) Decide(event *models.TrackingEvent) Decision {
	if event.ConfidenceScore < g.threshold {
		return Decision{Reason: ReasonBelowThreshold}
	}
	if g.history.HasDuplicate(event, g.window) {
		return Decision{Reason: ReasonDuplicate}
	}
	if !Valid(event.Data) {
		return Decision{Reason: ReasonInvalidData}
	}
	return Decision{Accepted: true, Reason: ReasonAccepted}
}

// Valid reports whether data carries an order id or a positive value.
func Valid(data *models.PurchaseData) bool {
	if data == nil {
		return false
	}
	return data.OrderID != "" || data.HasPositiveValue()
}
