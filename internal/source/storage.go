package source

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jimbolo/convtrack/internal/extract"
	"github.com/jimbolo/convtrack/internal/periodic"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Default poll intervals.
const (
	DefaultStoragePollInterval = time.Second
	DefaultCookiePollInterval  = 2 * time.Second
)

// StorageArea is a key/value storage the host exposes.
type StorageArea interface {
	Get(key string) (string, bool)
}

// MemoryStorage is an in-process StorageArea, e.g. a mirror of a browser's
// session storage fed by beacons.
type MemoryStorage struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

func (s *MemoryStorage) Remove(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// StorageSource reacts to storage events for watched keys and polls each
// watched key against its own snapshot.
type StorageSource struct {
	rules    Rules
	area     StorageArea
	keys     []string
	interval time.Duration

	out      outlet
	runner   *periodic.Runner
	mu       sync.Mutex
	snapshot map[string]storageValue
}

type storageValue struct {
	value   string
	present bool
}

// NewStorageSource creates a source watching keys in area.
func NewStorageSource(area StorageArea, keys []string, interval time.Duration, rules Rules) *StorageSource {
	if interval <= 0 {
		interval = DefaultStoragePollInterval
	}
	return &StorageSource{
		rules:    rules,
		area:     area,
		keys:     append([]string(nil), keys...),
		interval: interval,
		out:      outlet{name: "storage"},
		runner:   periodic.NewRunner(),
	}
}

func (s *StorageSource) Name() string { return "storage" }

func (s *StorageSource) Install(q Enqueuer) error {
	if s.area == nil {
		return errors.New("no storage area to observe")
	}
	if err := s.out.attach(q); err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshot = make(map[string]storageValue, len(s.keys))
	for _, k := range s.keys {
		v, ok := s.area.Get(k)
		s.snapshot[k] = storageValue{value: v, present: ok}
	}
	s.mu.Unlock()

	if err := s.runner.Start(periodic.Task{Name: "storage-poll", Interval: s.interval, Run: s.poll}); err != nil {
		s.out.detach()
		return err
	}
	return nil
}

func (s *StorageSource) Uninstall() error {
	s.out.detach()
	s.runner.StopAll()
	return nil
}

// Notify handles a storage event. It is considered when key contains one of
// the watched keys.
func (s *StorageSource) Notify(key, value string) bool {
	defer s.out.guard()
	for _, k := range s.keys {
		if strings.Contains(key, k) {
			return s.process("local", key, value)
		}
	}
	return false
}

func (s *StorageSource) poll(_ context.Context) {
	type change struct{ key, value string }
	var changes []change

	s.mu.Lock()
	for _, k := range s.keys {
		v, ok := s.area.Get(k)
		cur := storageValue{value: v, present: ok}
		if cur != s.snapshot[k] {
			s.snapshot[k] = cur
			changes = append(changes, change{k, v})
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.process("session", c.key, c.value)
	}
}

func (s *StorageSource) process(area, key, value string) bool {
	if !s.rules.Matcher.ContainsPurchaseData(value) {
		return false
	}
	data := s.rules.Extractor.Extract(extract.Text(value))
	return s.out.emit(NewEvent(models.SourceStorage, models.EventTypeStorageChange, data, map[string]string{
		"key":  key,
		"area": area,
	}))
}

// CookieReader returns the host's serialized cookie string.
type CookieReader interface {
	Cookies() string
}

// CookieJar is an in-process cookie mirror serialized as "a=1; b=2".
type CookieJar struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewCookieJar creates an empty jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{m: make(map[string]string)}
}

func (j *CookieJar) Set(name, value string) {
	j.mu.Lock()
	j.m[name] = value
	j.mu.Unlock()
}

func (j *CookieJar) Delete(name string) {
	j.mu.Lock()
	delete(j.m, name)
	j.mu.Unlock()
}

// Cookies serializes the jar with names in sorted order.
func (j *CookieJar) Cookies() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	names := make([]string, 0, len(j.m))
	for n := range j.m {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + j.m[n]
	}
	return strings.Join(parts, "; ")
}

// CookieSource polls the cookie string and reports changed strings that
// mention a purchase keyword. Its events are storage-change events.
type CookieSource struct {
	rules    Rules
	reader   CookieReader
	interval time.Duration

	out    outlet
	runner *periodic.Runner
	mu     sync.Mutex
	last   string
}

// NewCookieSource creates a cookie poller.
func NewCookieSource(reader CookieReader, interval time.Duration, rules Rules) *CookieSource {
	if interval <= 0 {
		interval = DefaultCookiePollInterval
	}
	return &CookieSource{
		rules:    rules,
		reader:   reader,
		interval: interval,
		out:      outlet{name: "cookie"},
		runner:   periodic.NewRunner(),
	}
}

func (s *CookieSource) Name() string { return "cookie" }

func (s *CookieSource) Install(q Enqueuer) error {
	if s.reader == nil {
		return errors.New("no cookie reader to observe")
	}
	if err := s.out.attach(q); err != nil {
		return err
	}
	s.mu.Lock()
	s.last = s.reader.Cookies()
	s.mu.Unlock()
	if err := s.runner.Start(periodic.Task{Name: "cookie-poll", Interval: s.interval, Run: s.poll}); err != nil {
		s.out.detach()
		return err
	}
	return nil
}

func (s *CookieSource) Uninstall() error {
	s.out.detach()
	s.runner.StopAll()
	return nil
}

func (s *CookieSource) poll(_ context.Context) {
	cur := s.reader.Cookies()
	s.mu.Lock()
	changed := cur != s.last
	s.last = cur
	s.mu.Unlock()
	if !changed || !s.rules.Matcher.ContainsPurchaseData(cur) {
		return
	}
	data := s.rules.Extractor.Extract(extract.Text(cur))
	s.out.emit(NewEvent(models.SourceStorage, models.EventTypeStorageChange, data, map[string]string{
		"key":  "document.cookie",
		"area": "cookie",
	}))
}
