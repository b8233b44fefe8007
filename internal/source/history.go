package source

import (
	"errors"
	"sync"
	"time"

	"github.com/jimbolo/convtrack/internal/extract"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
)

// DefaultSettleDelay is how long the history source waits after a purchase
// navigation before reading the document.
const DefaultSettleDelay = 500 * time.Millisecond

// NavigateFunc is the shape of the pushState/replaceState slots.
type NavigateFunc func(state any, title, url string)

// History models the host's session history with swappable navigation slots.
type History struct {
	mu           sync.RWMutex
	pushState    NavigateFunc
	replaceState NavigateFunc
	location     string
}

// NewHistory creates a History whose default slots just move the location.
func NewHistory(initialURL string) *History {
	h := &History{location: initialURL}
	h.pushState = h.setLocation
	h.replaceState = h.setLocation
	return h
}

func (h *History) setLocation(_ any, _ string, url string) {
	if url == "" {
		return
	}
	h.mu.Lock()
	h.location = url
	h.mu.Unlock()
}

// PushState invokes whatever function currently occupies the push slot.
func (h *History) PushState(state any, title, url string) {
	h.mu.RLock()
	f := h.pushState
	h.mu.RUnlock()
	f(state, title, url)
}

// ReplaceState invokes whatever function currently occupies the replace slot.
func (h *History) ReplaceState(state any, title, url string) {
	h.mu.RLock()
	f := h.replaceState
	h.mu.RUnlock()
	f(state, title, url)
}

// Slots returns the functions currently installed.
func (h *History) Slots() (push, replace NavigateFunc) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pushState, h.replaceState
}

// SetSlots installs new navigation functions.
func (h *History) SetSlots(push, replace NavigateFunc) {
	h.mu.Lock()
	h.pushState, h.replaceState = push, replace
	h.mu.Unlock()
}

// Location returns the current URL.
func (h *History) Location() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.location
}

// DocumentReader returns the current document markup.
type DocumentReader interface {
	Document() string
}

// Page is an in-process mirror of the current document.
type Page struct {
	mu   sync.RWMutex
	html string
}

// SetDocument replaces the mirrored markup.
func (p *Page) SetDocument(html string) {
	p.mu.Lock()
	p.html = html
	p.mu.Unlock()
}

func (p *Page) Document() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.html
}

// HistorySource watches navigations to purchase URLs. The wrapped slots call
// the original first, with the same arguments, then schedule a document scan
// after the settle delay; the navigation itself never waits.
type HistorySource struct {
	rules   Rules
	history *History
	doc     DocumentReader
	settle  time.Duration

	out         outlet
	mu          sync.Mutex
	origPush    NavigateFunc
	origReplace NavigateFunc
	installed   bool
	pending     map[*time.Timer]struct{}
	wg          sync.WaitGroup
}

// NewHistorySource creates a source over h that reads doc after settle.
func NewHistorySource(h *History, doc DocumentReader, settle time.Duration, rules Rules) *HistorySource {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &HistorySource{
		rules:   rules,
		history: h,
		doc:     doc,
		settle:  settle,
		out:     outlet{name: "history"},
		pending: make(map[*time.Timer]struct{}),
	}
}

func (s *HistorySource) Name() string { return "history" }

func (s *HistorySource) Install(q Enqueuer) error {
	if s.history == nil {
		return errors.New("no history to observe")
	}
	push, replace := s.history.Slots()
	if push == nil || replace == nil {
		return errors.New("history navigation slots are not set")
	}
	if err := s.out.attach(q); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.origPush, s.origReplace = push, replace
	s.installed = true
	s.history.SetSlots(
		func(state any, title, url string) {
			push(state, title, url)
			s.Observe("pushState", url)
		},
		func(state any, title, url string) {
			replace(state, title, url)
			s.Observe("replaceState", url)
		},
	)
	return nil
}

// Uninstall restores the original slot functions and cancels scans that have
// not started yet.
func (s *HistorySource) Uninstall() error {
	s.out.detach()
	s.mu.Lock()
	if s.installed {
		s.history.SetSlots(s.origPush, s.origReplace)
		s.origPush, s.origReplace = nil, nil
		s.installed = false
	}
	for t := range s.pending {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.pending, t)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// Observe handles a navigation. trigger is pushState, replaceState, popstate
// or hashchange.
func (s *HistorySource) Observe(trigger, url string) {
	defer s.out.guard()
	if !s.out.attached() || !s.rules.Matcher.IsPurchaseEndpoint(url) {
		return
	}
	logger.L().Debug("Purchase URL detected via history change", "trigger", trigger, "url", url)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.installed {
		return
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(s.settle, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.pending, t)
		s.mu.Unlock()
		s.scan(trigger, url)
	})
	s.pending[t] = struct{}{}
}

func (s *HistorySource) scan(trigger, url string) {
	defer s.out.guard()
	var data *models.PurchaseData
	if s.doc != nil {
		data = s.rules.Extractor.Extract(extract.HTML(s.doc.Document()))
	}
	s.out.emit(NewEvent(models.SourceHistory, models.EventTypeURLChange, data, map[string]string{
		"url":     url,
		"trigger": trigger,
	}))
}
