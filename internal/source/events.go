package source

import (
	"net/url"
	"sync"

	"github.com/jimbolo/convtrack/internal/extract"
	"github.com/jimbolo/convtrack/pkg/models"
)

// DefaultCustomEvents are the event names listened for when none are configured.
var DefaultCustomEvents = []string{"purchase", "checkout", "order_complete", "payment_success"}

// CustomEventSource reports dispatched custom events with a listened name.
// Every such event is queued, with or without extractable data.
type CustomEventSource struct {
	rules Rules
	out   outlet
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewCustomEventSource listens for names, or DefaultCustomEvents when empty.
func NewCustomEventSource(names []string, rules Rules) *CustomEventSource {
	s := &CustomEventSource{rules: rules, out: outlet{name: "custom-event"}}
	s.SetNames(names)
	return s
}

// SetNames replaces the listened event names.
func (s *CustomEventSource) SetNames(names []string) {
	if len(names) == 0 {
		names = DefaultCustomEvents
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	s.mu.Lock()
	s.names = set
	s.mu.Unlock()
}

func (s *CustomEventSource) Name() string             { return "custom-event" }
func (s *CustomEventSource) Install(q Enqueuer) error { return s.out.attach(q) }
func (s *CustomEventSource) Uninstall() error         { s.out.detach(); return nil }

// Dispatch delivers a custom event. detail may be a map, a JSON string,
// PurchaseData or any JSON-serializable value.
func (s *CustomEventSource) Dispatch(name string, detail any) bool {
	defer s.out.guard()
	s.mu.RLock()
	_, listened := s.names[name]
	s.mu.RUnlock()
	if !listened {
		return false
	}
	data := s.rules.Extractor.ExtractDetail(extract.Classify(detail))
	return s.out.emit(NewEvent(models.SourceCustomEvent, models.EventTypeCustomEvent, data, map[string]string{"event_name": name}))
}

// FormSource reports submissions of purchase forms: forms whose action is a
// purchase endpoint or that carry a payment-looking field.
type FormSource struct {
	rules Rules
	out   outlet
}

func NewFormSource(rules Rules) *FormSource {
	return &FormSource{rules: rules, out: outlet{name: "form"}}
}

func (s *FormSource) Name() string             { return "form" }
func (s *FormSource) Install(q Enqueuer) error { return s.out.attach(q) }
func (s *FormSource) Uninstall() error         { s.out.detach(); return nil }

// Submit handles a form submission.
func (s *FormSource) Submit(action string, fields url.Values) bool {
	defer s.out.guard()
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	if !s.rules.Matcher.IsPurchaseForm(action, names) {
		return false
	}
	data := s.rules.Extractor.ExtractDetail(extract.Form(fields))
	return s.out.emit(NewEvent(models.SourceForm, models.EventTypeFormSubmit, data, map[string]string{"action": action}))
}

// DOMSource inspects added elements. An element whose text mentions a
// purchase keyword and yields purchase data is queued; others are dropped.
type DOMSource struct {
	rules Rules
	out   outlet
}

func NewDOMSource(rules Rules) *DOMSource {
	return &DOMSource{rules: rules, out: outlet{name: "dom"}}
}

func (s *DOMSource) Name() string             { return "dom" }
func (s *DOMSource) Install(q Enqueuer) error { return s.out.attach(q) }
func (s *DOMSource) Uninstall() error         { s.out.detach(); return nil }

// ElementsAdded handles an HTML fragment of newly inserted elements and
// returns how many observations were queued.
func (s *DOMSource) ElementsAdded(fragment string) int {
	defer s.out.guard()
	if !s.out.attached() {
		return 0
	}
	n := 0
	for _, text := range extract.ElementTexts(fragment) {
		if !s.rules.Matcher.ContainsPurchaseData(text) {
			continue
		}
		data := s.rules.Extractor.Extract(extract.Text(text))
		if data == nil {
			continue
		}
		if s.out.emit(NewEvent(models.SourceDOM, models.EventTypeElementAdded, data, nil)) {
			n++
		}
	}
	return n
}

// PerformanceEntry is a performance timeline entry.
type PerformanceEntry struct {
	Name      string `json:"name"`
	EntryType string `json:"entryType"`
}

// PerformanceSource reports navigation entries that land on purchase URLs.
// These carry no purchase data.
type PerformanceSource struct {
	rules Rules
	out   outlet
}

func NewPerformanceSource(rules Rules) *PerformanceSource {
	return &PerformanceSource{rules: rules, out: outlet{name: "performance"}}
}

func (s *PerformanceSource) Name() string             { return "performance" }
func (s *PerformanceSource) Install(q Enqueuer) error { return s.out.attach(q) }
func (s *PerformanceSource) Uninstall() error         { s.out.detach(); return nil }

// Entries handles a batch of timeline entries.
func (s *PerformanceSource) Entries(entries []PerformanceEntry) int {
	defer s.out.guard()
	n := 0
	for _, e := range entries {
		if e.EntryType != "navigation" || !s.rules.Matcher.IsPurchaseEndpoint(e.Name) {
			continue
		}
		if s.out.emit(NewEvent(models.SourcePerformance, models.EventTypeNavigation, nil, map[string]string{"url": e.Name})) {
			n++
		}
	}
	return n
}
