// Package report dispatches accepted conversions to the external sink.
package report

import (
	"errors"

	"github.com/jimbolo/convtrack/pkg/models"
)

// DefaultCurrency is used when neither the event nor the sink config carries one.
const DefaultCurrency = "USD"

// ErrSinkNotConfigured is returned when the sink id or label is missing.
var ErrSinkNotConfigured = errors.New("conversion sink not configured")

// BuildPayload assembles the conversion payload for an accepted event.
// Value defaults to 0, currency to the sink default, and the transaction id
// falls back to the event id when no order id was extracted.
func BuildPayload(event *models.TrackingEvent, sink models.SinkConfig) (models.ConversionPayload, error) {
	if sink.ConversionID == "" || sink.ConversionLabel == "" {
		return models.ConversionPayload{}, ErrSinkNotConfigured
	}
	payload := models.ConversionPayload{
		SendTo:        sink.ConversionID + "/" + sink.ConversionLabel,
		Currency:      sink.DefaultCurrency,
		TransactionID: event.ID,
	}
	if payload.Currency == "" {
		payload.Currency = DefaultCurrency
	}
	if d := event.Data; d != nil {
		if d.Value != nil {
			payload.Value = *d.Value
		}
		if d.Currency != "" {
			payload.Currency = d.Currency
		}
		if d.OrderID != "" {
			payload.TransactionID = d.OrderID
		}
	}
	return payload, nil
}
