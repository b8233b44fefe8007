package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/internal/source"
)

// Signal kinds accepted from browser beacons.
const (
	KindNetwork     = "network"
	KindNavigation  = "navigation"
	KindStorage     = "storage"
	KindCookie      = "cookie"
	KindCustom      = "custom"
	KindForm        = "form"
	KindDOM         = "dom"
	KindPerformance = "performance"
	KindDocument    = "document"
)

// ErrUnsupportedSignal is returned for a signal the host cannot apply.
var ErrUnsupportedSignal = errors.New("unsupported signal")

// Signal is one browser observation relayed by a beacon. Which fields are
// meaningful depends on Kind.
type Signal struct {
	Kind string `json:"kind"`

	// network, navigation, performance
	URL    string `json:"url,omitempty"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`

	// navigation: pushState, replaceState, popstate or hashchange
	Trigger string `json:"trigger,omitempty"`

	// storage: area is "local" (storage event) or "session" (written to the mirror)
	Area  string `json:"area,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`

	// custom event or cookie name
	Name   string          `json:"name,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`

	// form
	Action string              `json:"action,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`

	// dom fragment or full document
	HTML string `json:"html,omitempty"`

	Entries []source.PerformanceEntry `json:"entries,omitempty"`
}

// Batch is the body of a beacon request.
type Batch struct {
	Signals []Signal `json:"signals"`
}

// HandleSignals routes each signal to the source that owns it. It returns
// how many signals were applied; failures are joined into the error and do
// not stop the rest of the batch.
func (d *Detector) HandleSignals(signals []Signal) (int, error) {
	applied := 0
	var errs []error
	for i, sig := range signals {
		if err := d.handleSignal(sig); err != nil {
			errs = append(errs, fmt.Errorf("signal %d (%s): %w", i, sig.Kind, err))
			continue
		}
		applied++
	}
	if len(errs) > 0 {
		logger.L().Debug("Beacon signals rejected", "rejected", len(errs), "applied", applied)
	}
	return applied, errors.Join(errs...)
}

func (d *Detector) handleSignal(sig Signal) error {
	src := d.sources
	switch sig.Kind {
	case KindNetwork:
		src.Network.Observe(sig.URL, sig.Status, []byte(sig.Body))
	case KindNavigation:
		return d.navigate(sig)
	case KindStorage:
		return d.store(sig)
	case KindCookie:
		jar, ok := d.host.Cookies.(*source.CookieJar)
		if !ok {
			return fmt.Errorf("%w: cookies are not mirrored", ErrUnsupportedSignal)
		}
		if sig.Name == "" {
			return errors.New("cookie name is required")
		}
		if sig.Value == "" {
			jar.Delete(sig.Name)
		} else {
			jar.Set(sig.Name, sig.Value)
		}
	case KindCustom:
		var detail any
		if len(sig.Detail) > 0 {
			if err := json.Unmarshal(sig.Detail, &detail); err != nil {
				return fmt.Errorf("invalid custom event detail: %w", err)
			}
		}
		src.CustomEvent.Dispatch(sig.Name, detail)
	case KindForm:
		src.Form.Submit(sig.Action, url.Values(sig.Fields))
	case KindDOM:
		src.DOM.ElementsAdded(sig.HTML)
	case KindPerformance:
		src.Performance.Entries(sig.Entries)
	case KindDocument:
		page, ok := d.host.Document.(*source.Page)
		if !ok {
			return fmt.Errorf("%w: document is not mirrored", ErrUnsupportedSignal)
		}
		page.SetDocument(sig.HTML)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrUnsupportedSignal, sig.Kind)
	}
	return nil
}

func (d *Detector) navigate(sig Signal) error {
	switch sig.Trigger {
	case "pushState", "":
		if d.host.History == nil {
			return fmt.Errorf("%w: no history", ErrUnsupportedSignal)
		}
		d.host.History.PushState(nil, "", sig.URL)
	case "replaceState":
		if d.host.History == nil {
			return fmt.Errorf("%w: no history", ErrUnsupportedSignal)
		}
		d.host.History.ReplaceState(nil, "", sig.URL)
	case "popstate", "hashchange":
		d.sources.History.Observe(sig.Trigger, sig.URL)
	default:
		return fmt.Errorf("%w: unknown navigation trigger %q", ErrUnsupportedSignal, sig.Trigger)
	}
	return nil
}

func (d *Detector) store(sig Signal) error {
	switch sig.Area {
	case "local", "":
		d.sources.Storage.Notify(sig.Key, sig.Value)
	case "session":
		mem, ok := d.host.Storage.(*source.MemoryStorage)
		if !ok {
			return fmt.Errorf("%w: storage is not mirrored", ErrUnsupportedSignal)
		}
		if sig.Value == "" {
			mem.Remove(sig.Key)
		} else {
			mem.Set(sig.Key, sig.Value)
		}
	default:
		return fmt.Errorf("%w: unknown storage area %q", ErrUnsupportedSignal, sig.Area)
	}
	return nil
}
