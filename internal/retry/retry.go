package retry

import (
	"context"
	"sync"
	"time"

	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Default retry constants
const (
	DefaultMaxRetries = 3
	DefaultDelay      = time.Second
)

// Policy is an effective retry policy: after the first attempt fails, retry n
// runs Delay*n later, up to MaxRetries retries.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// Backoff returns the delay before retry number attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	return p.Delay * time.Duration(attempt)
}

// MergePolicies combines a specific policy with a default policy. Specific
// values override defaults; unset values fall back to the package constants.
func MergePolicies(specific, defaultP *models.RetryPolicy) Policy {
	merged := Policy{MaxRetries: DefaultMaxRetries, Delay: DefaultDelay}
	for _, p := range []*models.RetryPolicy{defaultP, specific} {
		if p == nil {
			continue
		}
		if p.MaxRetries != nil {
			merged.MaxRetries = *p.MaxRetries
		}
		if p.Delay != nil {
			merged.Delay = p.Delay.Duration
		}
	}
	return merged
}

// Operation performs one attempt. attempt is 0 for the first try and n for
// retry n.
type Operation func(ctx context.Context, attempt int) error

// Scheduler runs operations and re-schedules failed ones on timers instead
// of blocking the caller during backoff.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewScheduler creates a scheduler. Operations receive a context that is
// cancelled by Stop.
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel, pending: make(map[*time.Timer]struct{})}
}

// Run executes the first attempt of op synchronously and returns its error.
// If it fails, retries are scheduled in the background according to policy;
// onGiveUp is called with the last error once retries are exhausted.
func (s *Scheduler) Run(operationName string, policy Policy, op Operation, onGiveUp func(error)) error {
	err := op(s.ctx, 0)
	if err == nil {
		return nil
	}
	logger.L().Warn("Operation failed", "operation", operationName, "attempt", 1, "max_attempts", policy.MaxRetries+1, "error", err)
	s.handleFailure(operationName, policy, op, onGiveUp, 0, err)
	return err
}

func (s *Scheduler) handleFailure(name string, policy Policy, op Operation, onGiveUp func(error), attempt int, err error) {
	l := logger.L().With("operation", name)
	if attempt >= policy.MaxRetries {
		l.Error("Operation failed after exhausting all retries", "attempts", attempt+1, "error", err)
		if onGiveUp != nil {
			onGiveUp(err)
		}
		return
	}
	next := attempt + 1
	delay := policy.Backoff(next)
	if !s.schedule(delay, func() { s.attempt(name, policy, op, onGiveUp, next) }) {
		l.Warn("Retry not scheduled, scheduler stopped", "attempt", next)
		return
	}
	l.Info("Scheduling retry", "attempt", next, "delay", delay.String())
}

func (s *Scheduler) attempt(name string, policy Policy, op Operation, onGiveUp func(error), attempt int) {
	if s.ctx.Err() != nil {
		return
	}
	err := op(s.ctx, attempt)
	if err == nil {
		logger.L().Info("Operation succeeded after retry", "operation", name, "attempt", attempt+1)
		return
	}
	logger.L().Warn("Operation failed", "operation", name, "attempt", attempt+1, "max_attempts", policy.MaxRetries+1, "error", err)
	s.handleFailure(name, policy, op, onGiveUp, attempt, err)
}

func (s *Scheduler) schedule(delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.pending, timer)
		s.mu.Unlock()
		fn()
	})
	s.pending[timer] = struct{}{}
	return true
}

// Pending returns the number of retries waiting on a timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels pending retries and waits for running ones to return.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	for timer := range s.pending {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.pending, timer)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
