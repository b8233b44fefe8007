// Package source holds the signal sources: independent observation points
// over one category of host occurrence. Sources only ever enqueue; scoring
// and gating happen on the processing loop.
package source

import (
	"errors"
	"sync"
	"time"

	"github.com/jimbolo/convtrack/internal/extract"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/internal/match"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Enqueuer is the single publish point sources report observations to.
type Enqueuer interface {
	Enqueue(event models.TrackingEvent) error
}

// Source is an installable observation point. Install acquires the
// interception; Uninstall restores what was there before and is idempotent.
type Source interface {
	Name() string
	Install(q Enqueuer) error
	Uninstall() error
}

// ErrAlreadyInstalled is returned by Install on an installed source.
var ErrAlreadyInstalled = errors.New("source already installed")

// Rules bundles what every source needs to judge and normalize an observation.
type Rules struct {
	Matcher   *match.Matcher
	Extractor *extract.Extractor
}

// NewRules creates a Rules value sharing one matcher.
func NewRules(m *match.Matcher) Rules {
	return Rules{Matcher: m, Extractor: extract.New(m)}
}

// NewEvent stamps an observation with its capture time and base confidence.
func NewEvent(src models.Source, typ models.EventType, data *models.PurchaseData, context map[string]string) models.TrackingEvent {
	return models.TrackingEvent{
		Source:         src,
		Type:           typ,
		Data:           data,
		Timestamp:      time.Now(),
		BaseConfidence: src.BaseConfidence(),
		Context:        context,
	}
}

// outlet is the attachment to the queue shared by every source. Emitting on
// a detached outlet is a no-op, so observations racing an uninstall are lost
// rather than delivered late.
type outlet struct {
	name string
	mu   sync.RWMutex
	q    Enqueuer
}

func (o *outlet) attach(q Enqueuer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.q != nil {
		return ErrAlreadyInstalled
	}
	if q == nil {
		return errors.New("nil enqueuer")
	}
	o.q = q
	return nil
}

// detach reports whether the outlet was attached.
func (o *outlet) detach() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	was := o.q != nil
	o.q = nil
	return was
}

func (o *outlet) attached() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.q != nil
}

func (o *outlet) emit(event models.TrackingEvent) bool {
	o.mu.RLock()
	q := o.q
	o.mu.RUnlock()
	if q == nil {
		return false
	}
	if err := q.Enqueue(event); err != nil {
		logger.L().Warn("Failed to enqueue observation", "source", o.name, "error", err)
		return false
	}
	logger.L().Debug("Observation queued", "source", o.name, "type", event.Type, "order_id", event.OrderID())
	return true
}

// guard recovers a panicking observation callback so one misbehaving path
// cannot take down the others.
func (o *outlet) guard() {
	if r := recover(); r != nil {
		logger.L().Error("Observation callback panicked", "source", o.name, "panic", r)
	}
}
