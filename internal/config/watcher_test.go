package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testInitLogger initializes the logger for test execution, discarding output.
func testInitLogger(t *testing.T) {
	t.Helper()
	settings := models.ApplicationSettings{LogLevel: "error", LogFormat: "text"}
	require.NoError(t, logger.Init(settings, io.Discard), "Failed to initialize logger for test")
}

type configRecorder struct {
	mu      sync.Mutex
	configs []*models.Config
}

func (r *configRecorder) record(cfg *models.Config) {
	r.mu.Lock()
	r.configs = append(r.configs, cfg)
	r.mu.Unlock()
}

func (r *configRecorder) last() *models.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.configs) == 0 {
		return nil
	}
	return r.configs[len(r.configs)-1]
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	testInitLogger(t)
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  purchase_endpoints: [/checkout]\n"), 0644))

	rec := &configRecorder{}
	w, err := NewWatcher(path, rec.record)
	require.NoError(t, err)
	w.Debounce = 20 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("detection:\n  purchase_endpoints: [/order-done]\n"), 0644))

	assert.Eventually(t, func() bool {
		cfg := rec.last()
		return cfg != nil && len(cfg.Detection.PurchaseEndpoints) == 1 && cfg.Detection.PurchaseEndpoints[0] == "/order-done"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresInvalidEditsAndOtherFiles(t *testing.T) {
	testInitLogger(t)
	clearOverrides(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	rec := &configRecorder{}
	w, err := NewWatcher(path, rec.record)
	require.NoError(t, err)
	w.Debounce = 20 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  confidence_threshold: 7\n"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Nil(t, rec.last())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
