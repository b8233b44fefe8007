// Package score assigns confidence scores to tracking events.
package score

import (
	"math"

	"github.com/jimbolo/convtrack/pkg/models"
)

// Score weights.
const (
	OrderIDBonus      = 0.20
	ValueBonus        = 0.15
	CurrencyBonus     = 0.10
	ItemsBonus        = 0.10
	NetworkBonus      = 0.10
	CustomEventBonus  = 0.15
	IncompletePenalty = 0.20
	minCompleteFields = 2
	scoreFloor        = 0.0
	scoreCeiling      = 1.0
)

// Score returns clamp(base + bonuses - penalties, 0, 1) for event.
// Manual triggers are fully trusted and always score 1.0.
func Score(event *models.TrackingEvent) float64 {
	if event.Source == models.SourceManual {
		return scoreCeiling
	}

	s := event.BaseConfidence
	if d := event.Data; d != nil {
		if d.OrderID != "" {
			s += OrderIDBonus
		}
		if d.HasPositiveValue() {
			s += ValueBonus
		}
		if d.Currency != "" {
			s += CurrencyBonus
		}
		if d.Items != nil {
			s += ItemsBonus
		}
	}

	switch event.Source {
	case models.SourceNetwork:
		s += NetworkBonus
	case models.SourceCustomEvent:
		s += CustomEventBonus
	}

	if event.Data.PopulatedFields() < minCompleteFields {
		s -= IncompletePenalty
	}

	if math.IsNaN(s) {
		return scoreFloor
	}
	return math.Min(scoreCeiling, math.Max(scoreFloor, s))
}
