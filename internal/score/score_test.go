package score

import (
	"math"
	"testing"

	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func event(source models.Source, data *models.PurchaseData) *models.TrackingEvent {
	return &models.TrackingEvent{Source: source, BaseConfidence: source.BaseConfidence(), Data: data}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		event *models.TrackingEvent
		want  float64
	}{
		{
			name:  "network with full data clamps to one",
			event: event(models.SourceNetwork, &models.PurchaseData{OrderID: "ORD1", Value: ptr(49.99), Currency: "USD"}),
			want:  1.0,
		},
		{
			name:  "form with order id and value",
			event: event(models.SourceForm, &models.PurchaseData{OrderID: "F1", Value: ptr(10.0)}),
			want:  0.85,
		},
		{
			name:  "zero value earns no value bonus",
			event: event(models.SourceStorage, &models.PurchaseData{OrderID: "S1", Value: ptr(0.0)}),
			want:  0.9,
		},
		{
			name:  "custom event without data is penalized",
			event: event(models.SourceCustomEvent, nil),
			want:  0.85,
		},
		{
			name:  "performance entry without data",
			event: event(models.SourcePerformance, nil),
			want:  0.1,
		},
		{
			name:  "dom mutation with currency and items",
			event: event(models.SourceDOM, &models.PurchaseData{Currency: "EUR", Items: []any{}}),
			want:  0.6,
		},
		{
			name:  "manual trigger is fully trusted",
			event: event(models.SourceManual, nil),
			want:  1.0,
		},
		{
			name:  "zero base with no data floors at zero",
			event: &models.TrackingEvent{Source: models.SourceHistory},
			want:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.event), 1e-9)
		})
	}
}

func TestScore_AlwaysClamped(t *testing.T) {
	sources := []models.Source{
		models.SourceNetwork, models.SourceHistory, models.SourceStorage, models.SourceCustomEvent,
		models.SourceForm, models.SourceDOM, models.SourcePerformance, models.SourceManual,
	}
	datas := []*models.PurchaseData{
		nil,
		{},
		{OrderID: "A"},
		{OrderID: "A", Value: ptr(1.0), Currency: "USD", Items: []any{1}},
		{Value: ptr(0.0), Currency: "USD"},
	}
	bases := []float64{-5, 0, 0.3, 0.9, 1, 7, math.NaN()}

	for _, src := range sources {
		for _, d := range datas {
			for _, base := range bases {
				s := Score(&models.TrackingEvent{Source: src, Data: d, BaseConfidence: base})
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 1.0)
			}
		}
	}
}
