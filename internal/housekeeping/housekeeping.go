// Package housekeeping prunes old history and emits the heartbeat.
package housekeeping

import (
	"context"
	"time"

	"github.com/jimbolo/convtrack/internal/history"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/internal/periodic"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Defaults for the housekeeping intervals.
const (
	DefaultRetention         = 24 * time.Hour
	DefaultPruneInterval     = time.Minute
	DefaultHeartbeatInterval = time.Minute
)

// StatsFunc reports the current detector state for the heartbeat.
type StatsFunc func() models.Stats

// Service runs the prune pass and the heartbeat as two independent,
// non-overlapping periodic tasks.
type Service struct {
	history           *history.Store
	retention         time.Duration
	pruneInterval     time.Duration
	heartbeatInterval time.Duration
	stats             StatsFunc
	now               func() time.Time
	runner            *periodic.Runner
}

// NewService creates the housekeeping service. Zero durations fall back to
// the package defaults.
func NewService(store *history.Store, retention, pruneInterval, heartbeatInterval time.Duration, stats StatsFunc) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if pruneInterval <= 0 {
		pruneInterval = DefaultPruneInterval
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Service{
		history:           store,
		retention:         retention,
		pruneInterval:     pruneInterval,
		heartbeatInterval: heartbeatInterval,
		stats:             stats,
		now:               time.Now,
		runner:            periodic.NewRunner(),
	}
}

// Start launches the prune and heartbeat tasks.
func (s *Service) Start() error {
	if err := s.runner.Start(periodic.Task{Name: "prune", Interval: s.pruneInterval, Run: func(context.Context) { s.Prune() }}); err != nil {
		return err
	}
	if s.stats != nil {
		if err := s.runner.Start(periodic.Task{Name: "heartbeat", Interval: s.heartbeatInterval, Run: func(context.Context) { s.Heartbeat() }}); err != nil {
			s.runner.StopAll()
			return err
		}
	}
	logger.L().Info("Housekeeping started", "retention", s.retention.String(), "prune_interval", s.pruneInterval.String())
	return nil
}

// Stop halts both tasks and waits for them.
func (s *Service) Stop() {
	s.runner.StopAll()
}

// Prune removes history entries older than the retention window and returns
// how many were dropped.
func (s *Service) Prune() int {
	removed := s.history.Prune(s.now().Add(-s.retention))
	if removed > 0 {
		logger.L().Debug("Pruned history", "removed", removed, "remaining", s.history.Len())
	}
	return removed
}

// Heartbeat logs queue depth, processed count and uptime.
func (s *Service) Heartbeat() {
	st := s.stats()
	logger.L().Info("Heartbeat - system active",
		"events_queued", st.QueuedEvents,
		"events_processed", st.ProcessedEvents,
		"history_size", st.HistorySize,
		"conversions", st.Conversions,
		"uptime", st.Uptime.Round(time.Second).String())
}
