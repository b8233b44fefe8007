package models

import "time"

// Source indicates which signal source observed an event.
type Source string

const (
	SourceNetwork     Source = "network-response"
	SourceHistory     Source = "history-change"
	SourceStorage     Source = "storage-change"
	SourceCustomEvent Source = "custom-event"
	SourceForm        Source = "form-submit"
	SourceDOM         Source = "dom-mutation"
	SourcePerformance Source = "performance-nav"
	SourceManual      Source = "manual" // For manual triggers (API, CLI)
)

// BaseConfidence returns the a priori weight of a source, reflecting how
// reliable its observations are.
func (s Source) BaseConfidence() float64 {
	switch s {
	case SourceManual:
		return 1.0
	case SourceCustomEvent:
		return 0.9
	case SourceNetwork:
		return 0.8
	case SourceStorage:
		return 0.7
	case SourceHistory:
		return 0.6
	case SourceForm:
		return 0.5
	case SourceDOM:
		return 0.4
	case SourcePerformance:
		return 0.3
	default:
		return 0.5
	}
}

// EventType is the sub-kind of an observation.
type EventType string

const (
	EventTypePurchaseResponse EventType = "purchase_response"
	EventTypeURLChange        EventType = "url_change"
	EventTypeStorageChange    EventType = "storage_change"
	EventTypeCustomEvent      EventType = "custom_event"
	EventTypeFormSubmit       EventType = "form_submit"
	EventTypeElementAdded     EventType = "element_added"
	EventTypeNavigation       EventType = "navigation"
	EventTypeManualTrigger    EventType = "manual_trigger"
)

// PurchaseData is the normalized description of a candidate purchase.
// Once extracted it is never modified; readers share the pointer.
type PurchaseData struct {
	OrderID  string   `json:"orderId,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Items    []any    `json:"items,omitempty"`
}

// PopulatedFields counts the fields carrying a value.
func (p *PurchaseData) PopulatedFields() int {
	if p == nil {
		return 0
	}
	n := 0
	if p.OrderID != "" {
		n++
	}
	if p.Value != nil {
		n++
	}
	if p.Currency != "" {
		n++
	}
	if p.Items != nil {
		n++
	}
	return n
}

// HasPositiveValue reports whether a value is present and greater than zero.
func (p *PurchaseData) HasPositiveValue() bool {
	return p != nil && p.Value != nil && *p.Value > 0
}

// TrackingEvent is an observation of a possible purchase.
type TrackingEvent struct {
	ID              string            `json:"id"`                // Assigned at processing time
	Source          Source            `json:"source"`            // Origin of the observation
	Type            EventType         `json:"type"`              // Sub-kind of the observation
	Data            *PurchaseData     `json:"data,omitempty"`    // Absent if extraction failed
	Timestamp       time.Time         `json:"timestamp"`         // Capture time
	BaseConfidence  float64           `json:"base_confidence"`   // Fixed per source kind
	ConfidenceScore float64           `json:"confidence_score"`  // Computed during processing
	RetryCount      int               `json:"retry_count"`       // Conversion dispatch retries so far
	Context         map[string]string `json:"context,omitempty"` // url, storage key, event name...
}

// OrderID returns the extracted order id, or "" when there is none.
func (e *TrackingEvent) OrderID() string {
	if e == nil || e.Data == nil {
		return ""
	}
	return e.Data.OrderID
}

// ConversionPayload is what is dispatched to the external reporting sink.
type ConversionPayload struct {
	SendTo        string  `json:"send_to"`
	Value         float64 `json:"value"`
	Currency      string  `json:"currency"`
	TransactionID string  `json:"transaction_id"`
}

// ConversionRecord is kept once per accepted purchase, for bookkeeping only.
type ConversionRecord struct {
	ID              int64             `json:"id"`
	EventID         string            `json:"event_id"`
	Source          Source            `json:"source"`
	Payload         ConversionPayload `json:"payload"`
	ConfidenceScore float64           `json:"confidence_score"`
	RecordedAt      time.Time         `json:"recorded_at"`
}

// Stats summarizes the detector state for operational visibility.
type Stats struct {
	QueuedEvents    int            `json:"queued_events"`
	ProcessedEvents int64          `json:"processed_events"`
	HistorySize     int            `json:"history_size"`
	Conversions     int            `json:"conversions"`
	Uptime          time.Duration  `json:"uptime"`
	LastEvent       *TrackingEvent `json:"last_event,omitempty"`
}
