// Package detector assembles the signal sources, the processing loop, the
// conversion gate and the reporter into one purchase detector.
package detector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jimbolo/convtrack/internal/config"
	"github.com/jimbolo/convtrack/internal/gate"
	"github.com/jimbolo/convtrack/internal/history"
	"github.com/jimbolo/convtrack/internal/housekeeping"
	"github.com/jimbolo/convtrack/internal/ledger"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/internal/match"
	"github.com/jimbolo/convtrack/internal/queue"
	"github.com/jimbolo/convtrack/internal/report"
	"github.com/jimbolo/convtrack/internal/retry"
	"github.com/jimbolo/convtrack/internal/source"
	"github.com/jimbolo/convtrack/internal/worker"
	"github.com/jimbolo/convtrack/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ErrDestroyed is returned by operations on a destroyed detector.
var ErrDestroyed = errors.New("detector destroyed")

// Host is the environment the sources observe. Nil members make the matching
// source fail to install; the other sources keep working.
type Host struct {
	HTTPClient *http.Client
	History    *source.History
	Document   source.DocumentReader
	Storage    source.StorageArea
	Cookies    source.CookieReader
}

// NewHost creates a host backed by in-process mirrors, suitable for a daemon
// fed by browser beacons.
func NewHost() *Host {
	return &Host{
		HTTPClient: &http.Client{},
		History:    source.NewHistory(""),
		Document:   &source.Page{},
		Storage:    source.NewMemoryStorage(),
		Cookies:    source.NewCookieJar(),
	}
}

// Sources gives typed access to the individual signal sources.
type Sources struct {
	Network     *source.NetworkSource
	History     *source.HistorySource
	Storage     *source.StorageSource
	Cookie      *source.CookieSource
	CustomEvent *source.CustomEventSource
	Form        *source.FormSource
	DOM         *source.DOMSource
	Performance *source.PerformanceSource
}

func (s Sources) all() []source.Source {
	return []source.Source{s.Network, s.History, s.Storage, s.Cookie, s.CustomEvent, s.Form, s.DOM, s.Performance}
}

// Option customizes a Detector.
type Option func(*Detector)

// WithSender replaces the sink sender chosen from the config.
func WithSender(s report.Sender) Option {
	return func(d *Detector) { d.sender = s }
}

// WithLedger replaces the ledger opened from the config. The detector closes
// it on Destroy.
func WithLedger(l ledger.Ledger) Option {
	return func(d *Detector) { d.ledger = l }
}

// Detector is the purchase detector.
type Detector struct {
	cfg     *models.Config
	host    *Host
	matcher *match.Matcher
	sources Sources

	queue        *queue.EventQueue
	history      *history.Store
	gate         *gate.Gate
	loop         *worker.Loop
	scheduler    *retry.Scheduler
	sender       report.Sender
	reporter     *report.Reporter
	ledger       ledger.Ledger
	housekeeping *housekeeping.Service

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	installed []source.Source
	done      chan struct{}

	destroyOnce sync.Once
	destroyErr  error
}

// New builds a detector for cfg over host. Unset config fields get their
// defaults; cfg itself is not modified.
func New(cfg *models.Config, host *Host, opts ...Option) (*Detector, error) {
	c := *cfg
	config.ApplyDefaults(&c)
	if err := config.ValidateConfig(&c); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	if host == nil {
		host = NewHost()
	}

	d := &Detector{
		cfg:       &c,
		host:      host,
		matcher:   match.New(c.Detection.PurchaseEndpoints, c.Detection.PurchaseKeywords),
		queue:     queue.NewEventQueue(c.Application.QueuePersistPath),
		history:   history.NewStore(),
		scheduler: retry.NewScheduler(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.ledger == nil {
		l, err := ledger.Open(c.Ledger)
		if err != nil {
			return nil, fmt.Errorf("failed to open conversion ledger: %w", err)
		}
		d.ledger = l
	}
	if d.sender == nil {
		d.sender = report.SelectSender(c.Sink, nil)
	}

	d.gate = gate.New(*c.Detection.ConfidenceThreshold, c.Detection.DedupWindow.Duration, d.history)
	d.reporter = report.NewReporter(c.Sink, d.sender, d.scheduler, d.ledger)
	d.loop = worker.NewLoop(c.Processing.DrainInterval.Duration, d.queue, d)
	d.housekeeping = housekeeping.NewService(d.history, c.Detection.RetentionWindow.Duration,
		c.Processing.PruneInterval.Duration, c.Processing.HeartbeatInterval.Duration, d.Stats)

	rules := source.NewRules(d.matcher)
	d.sources = Sources{
		Network:     source.NewNetworkSource(host.HTTPClient, rules),
		History:     source.NewHistorySource(host.History, host.Document, c.Processing.HistorySettleDelay.Duration, rules),
		Storage:     source.NewStorageSource(host.Storage, c.Detection.StorageKeys, c.Processing.StoragePollInterval.Duration, rules),
		Cookie:      source.NewCookieSource(host.Cookies, c.Processing.CookiePollInterval.Duration, rules),
		CustomEvent: source.NewCustomEventSource(c.Detection.CustomEvents, rules),
		Form:        source.NewFormSource(rules),
		DOM:         source.NewDOMSource(rules),
		Performance: source.NewPerformanceSource(rules),
	}
	return d, nil
}

// Start restores persisted queue state, installs the sources and starts the
// processing loop and housekeeping. A source that fails to install is logged
// and skipped. Cancelling ctx destroys the detector.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.done:
		return ErrDestroyed
	default:
	}
	if d.started {
		return nil
	}

	l := logger.L()
	if err := d.queue.Start(); err != nil {
		return fmt.Errorf("failed to start event queue: %w", err)
	}
	for _, src := range d.sources.all() {
		if err := src.Install(d.queue); err != nil {
			l.Warn("Signal source not installed, skipping", "source", src.Name(), "error", err)
			continue
		}
		d.installed = append(d.installed, src)
		l.Debug("Signal source installed", "source", src.Name())
	}
	d.loop.Start()
	if err := d.housekeeping.Start(); err != nil {
		l.Error("Housekeeping failed to start", "error", err)
	}
	d.started = true
	d.startedAt = time.Now()

	go func() {
		select {
		case <-ctx.Done():
			d.Destroy()
		case <-d.done:
		}
	}()

	l.Info("Detector started", "sources", len(d.installed),
		"threshold", *d.cfg.Detection.ConfidenceThreshold, "sender", d.sender.Name())
	return nil
}

// Destroy uninstalls every source, restoring what they intercepted, stops
// the loop, housekeeping and pending retries, and persists queued events.
// Queued events are kept, not flushed. Destroy is idempotent.
func (d *Detector) Destroy() error {
	d.destroyOnce.Do(func() {
		d.mu.Lock()
		close(d.done)
		installed := d.installed
		d.installed = nil
		d.mu.Unlock()

		var g errgroup.Group
		for _, src := range installed {
			src := src
			g.Go(func() error {
				if err := src.Uninstall(); err != nil {
					return fmt.Errorf("uninstall %s: %w", src.Name(), err)
				}
				return nil
			})
		}
		errs := []error{g.Wait()}

		d.housekeeping.Stop()
		// Cancels the dispatch context first so an in-flight Process returns.
		d.scheduler.Stop()
		d.loop.Stop()
		errs = append(errs, d.queue.Stop(), d.ledger.Close())

		d.destroyErr = errors.Join(errs...)
		logger.L().Info("Detector destroyed", "queued_events", d.queue.Len())
	})
	return d.destroyErr
}

// ManualTrigger injects a fully trusted purchase, bypassing the sources and
// the extractor. It is processed like any other event, at confidence 1.0.
func (d *Detector) ManualTrigger(data models.PurchaseData) error {
	select {
	case <-d.done:
		return ErrDestroyed
	default:
	}
	dataCopy := data
	if data.Items != nil {
		dataCopy.Items = append([]any(nil), data.Items...)
	}
	event := source.NewEvent(models.SourceManual, models.EventTypeManualTrigger, &dataCopy, nil)
	if err := d.queue.Enqueue(event); err != nil {
		return fmt.Errorf("manual trigger: %w", err)
	}
	logger.L().Info("Manual trigger queued", "order_id", data.OrderID)
	return nil
}

// Stats reports queue depth, processed count, history size, conversions and
// uptime.
func (d *Detector) Stats() models.Stats {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()

	st := models.Stats{
		QueuedEvents:    d.queue.Len(),
		ProcessedEvents: d.loop.Processed(),
		HistorySize:     d.history.Len(),
	}
	if n, err := d.ledger.Count(context.Background()); err == nil {
		st.Conversions = n
	}
	if !startedAt.IsZero() {
		st.Uptime = time.Since(startedAt)
	}
	if last, ok := d.history.Last(); ok {
		st.LastEvent = &last
	}
	return st
}

// Conversions lists the recorded conversions.
func (d *Detector) Conversions(ctx context.Context) ([]models.ConversionRecord, error) {
	return d.ledger.List(ctx)
}

// UpdateRules swaps the detection rules used by every source from now on.
// Empty lists fall back to the defaults.
func (d *Detector) UpdateRules(det models.DetectionConfig) {
	endpoints, keywords, events := det.PurchaseEndpoints, det.PurchaseKeywords, det.CustomEvents
	if len(endpoints) == 0 {
		endpoints = config.DefaultPurchaseEndpoints
	}
	if len(keywords) == 0 {
		keywords = config.DefaultPurchaseKeywords
	}
	if len(events) == 0 {
		events = config.DefaultCustomEvents
	}
	d.matcher.Update(endpoints, keywords)
	d.sources.CustomEvent.SetNames(events)
	logger.L().Info("Detection rules updated", "endpoints", len(endpoints), "keywords", len(keywords))
}

// Rules returns the rules currently in effect.
func (d *Detector) Rules() match.Rules {
	return d.matcher.Rules()
}

// Sources returns the detector's signal sources.
func (d *Detector) Sources() Sources {
	return d.sources
}

// Installed returns the names of the sources that installed successfully.
func (d *Detector) Installed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, len(d.installed))
	for i, s := range d.installed {
		names[i] = s.Name()
	}
	return names
}

// Host returns the environment the detector observes.
func (d *Detector) Host() *Host {
	return d.host
}
