package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
)

// DefaultInterval is how often the loop checks the queue.
const DefaultInterval = 100 * time.Millisecond

// Processor defines the interface for processing a dequeued event.
// This decouples the drain loop from scoring, gating and reporting.
type Processor interface {
	Process(ctx context.Context, event models.TrackingEvent) error
}

// Source is the queue the loop drains.
type Source interface {
	Dequeue() (models.TrackingEvent, bool)
}

// Loop is the single cooperative drain loop. On every tick it dequeues and
// processes events one at a time until the queue is empty. A tick that fires
// while a drain is still running is skipped, so at most one event is being
// processed at any time and events are handled in FIFO order.
type Loop struct {
	interval  time.Duration
	queue     Source
	processor Processor

	draining  atomic.Bool
	processed atomic.Int64

	mu        sync.Mutex
	wg        sync.WaitGroup
	cancelCtx context.CancelFunc
}

// NewLoop creates a drain loop. A non-positive interval falls back to
// DefaultInterval.
func NewLoop(interval time.Duration, q Source, proc Processor) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{interval: interval, queue: q, processor: proc}
}

// Start launches the loop goroutine. Calling Start on a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelCtx != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelCtx = cancel

	logger.L().Info("Starting drain loop", "interval", l.interval.String())
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight event, if any.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel := l.cancelCtx
	l.cancelCtx = nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	logger.L().Info("Stopping drain loop...")
	cancel()
	l.wg.Wait()
	logger.L().Info("Drain loop stopped")
}

// Processed returns how many events have been handed to the processor.
func (l *Loop) Processed() int64 {
	return l.processed.Load()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Drain(ctx)
		}
	}
}

// Drain processes queued events until the queue is empty or ctx is done.
// It returns immediately if another drain is already running.
func (l *Loop) Drain(ctx context.Context) {
	if !l.draining.CompareAndSwap(false, true) {
		return
	}
	defer l.draining.Store(false)

	for ctx.Err() == nil {
		event, ok := l.queue.Dequeue()
		if !ok {
			return
		}
		l.process(ctx, event)
	}
}

func (l *Loop) process(ctx context.Context, event models.TrackingEvent) {
	l.processed.Add(1)
	log := logger.L().With("source", event.Source, "type", event.Type)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while processing event", "panic", r)
		}
	}()
	if err := l.processor.Process(ctx, event); err != nil {
		log.Error("Failed to process event", "error", err)
	}
}
