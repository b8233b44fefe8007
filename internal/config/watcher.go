package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads the config file whenever it changes on disk and hands each
// successfully validated config to onChange. Invalid edits are logged and
// ignored; the running config stays in effect.
type Watcher struct {
	path     string
	onChange func(*models.Config)
	Debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, onChange func(*models.Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path '%s': %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{path: abs, onChange: onChange, Debounce: DefaultDebounce, watcher: fw}, nil
}

// Start begins watching. The directory is watched rather than the file so
// that editors replacing the file by rename are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	go w.run(ctx)
	logger.L().Info("Watching config file for changes", "path", w.path)
	return nil
}

// Stop ends watching and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	l := logger.L().With("path", w.path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(w.Debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			l.Error("Config watcher error", "error", err)
		case <-debounce:
			debounce = nil
			w.reload(l)
		}
	}
}

func (w *Watcher) reload(l *slog.Logger) {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		l.Warn("Ignoring invalid config change", "error", err)
		return
	}
	l.Info("Config file changed, applying")
	w.onChange(cfg)
}
