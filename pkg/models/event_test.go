package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestSource_BaseConfidence(t *testing.T) {
	tests := map[Source]float64{
		SourceNetwork:     0.8,
		SourceCustomEvent: 0.9,
		SourceStorage:     0.7,
		SourceHistory:     0.6,
		SourceForm:        0.5,
		SourceDOM:         0.4,
		SourcePerformance: 0.3,
		SourceManual:      1.0,
	}
	for source, want := range tests {
		assert.Equal(t, want, source.BaseConfidence(), string(source))
	}
}

func TestPurchaseData_PopulatedFields(t *testing.T) {
	var nilData *PurchaseData
	assert.Equal(t, 0, nilData.PopulatedFields())
	assert.Equal(t, 0, (&PurchaseData{}).PopulatedFields())
	assert.Equal(t, 1, (&PurchaseData{OrderID: "A1"}).PopulatedFields())
	assert.Equal(t, 2, (&PurchaseData{OrderID: "A1", Value: ptr(0.0)}).PopulatedFields())
	assert.Equal(t, 4, (&PurchaseData{OrderID: "A1", Value: ptr(3.5), Currency: "EUR", Items: []any{}}).PopulatedFields())
}

func TestPurchaseData_HasPositiveValue(t *testing.T) {
	assert.False(t, (*PurchaseData)(nil).HasPositiveValue())
	assert.False(t, (&PurchaseData{}).HasPositiveValue())
	assert.False(t, (&PurchaseData{Value: ptr(0.0)}).HasPositiveValue())
	assert.True(t, (&PurchaseData{Value: ptr(0.01)}).HasPositiveValue())
}

func TestTrackingEvent_OrderID(t *testing.T) {
	assert.Equal(t, "", (*TrackingEvent)(nil).OrderID())
	assert.Equal(t, "", (&TrackingEvent{}).OrderID())
	assert.Equal(t, "ORD1", (&TrackingEvent{Data: &PurchaseData{OrderID: "ORD1"}}).OrderID())
}
