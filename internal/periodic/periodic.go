// Package periodic runs independently scheduled interval tasks, each on its
// own goroutine and ticker.
package periodic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jimbolo/convtrack/internal/logger"
)

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Runner manages a set of periodic tasks. A tick that fires while the same
// task is still running is dropped by the ticker, so a task never overlaps
// with itself.
type Runner struct {
	wg          sync.WaitGroup
	cancelFuncs map[string]context.CancelFunc // Map task name to its context cancel func
	mu          sync.Mutex                    // Protects cancelFuncs map
}

// NewRunner creates an empty Runner.
func NewRunner() *Runner {
	return &Runner{cancelFuncs: make(map[string]context.CancelFunc)}
}

// Start launches a goroutine for task. Task names must be unique among the
// running tasks.
func (r *Runner) Start(task Task) error {
	if task.Interval <= 0 {
		return fmt.Errorf("task %q has invalid interval %s", task.Name, task.Interval)
	}
	if task.Run == nil {
		return fmt.Errorf("task %q has no run function", task.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cancelFuncs[task.Name]; exists {
		return fmt.Errorf("task %q is already running", task.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancelFuncs[task.Name] = cancel
	r.wg.Add(1)
	go r.run(ctx, task)
	logger.L().Debug("Started periodic task", "task", task.Name, "interval", task.Interval.String())
	return nil
}

// Stop cancels one task. It does not wait for it to return.
func (r *Runner) Stop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancelFuncs[name]; ok {
		cancel()
		delete(r.cancelFuncs, name)
	}
}

// StopAll cancels every task and waits for all of them to return.
func (r *Runner) StopAll() {
	r.mu.Lock()
	for name, cancel := range r.cancelFuncs {
		logger.L().Debug("Cancelling periodic task", "task", name)
		cancel()
	}
	r.cancelFuncs = make(map[string]context.CancelFunc)
	r.mu.Unlock()

	r.wg.Wait()
}

// Running returns the number of active tasks.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancelFuncs)
}

func (r *Runner) run(ctx context.Context, task Task) {
	defer r.wg.Done()
	l := logger.L().With("task", task.Name)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, l, task)
		}
	}
}

func (r *Runner) tick(ctx context.Context, l *slog.Logger, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			l.Error("Periodic task panicked", "panic", rec)
		}
	}()
	task.Run(ctx)
}
