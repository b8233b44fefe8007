package housekeeping

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jimbolo/convtrack/internal/history"
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

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func eventAt(id string, ts time.Time) models.TrackingEvent {
	return models.TrackingEvent{ID: id, Source: models.SourceNetwork, Timestamp: ts}
}

func TestPrune_RetentionBoundary(t *testing.T) {
	testInitLogger(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := history.NewStore()
	store.Append(eventAt("old", now.Add(-25*time.Hour)))
	store.Append(eventAt("edge-old", now.Add(-24*time.Hour-time.Millisecond)))
	store.Append(eventAt("young", now.Add(-23*time.Hour)))
	store.Append(eventAt("fresh", now))

	s := NewService(store, 0, 0, 0, nil)
	s.now = func() time.Time { return now }

	assert.Equal(t, 2, s.Prune())
	ids := []string{}
	for _, e := range store.Snapshot() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"young", "fresh"}, ids)
	assert.Equal(t, 0, s.Prune())
}

func TestService_PeriodicPrune(t *testing.T) {
	testInitLogger(t)
	store := history.NewStore()
	store.Append(eventAt("stale", time.Now().Add(-time.Hour)))
	store.Append(eventAt("live", time.Now()))

	s := NewService(store, 30*time.Minute, 5*time.Millisecond, time.Hour, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 5*time.Millisecond)
	last, ok := store.Last()
	require.True(t, ok)
	assert.Equal(t, "live", last.ID)
}

func TestService_Heartbeat(t *testing.T) {
	buf := &syncBuffer{}
	require.NoError(t, logger.Init(models.ApplicationSettings{LogLevel: "info", LogFormat: "text"}, buf))
	t.Cleanup(func() { testInitLogger(t) })

	var calls atomic.Int32
	stats := func() models.Stats {
		calls.Add(1)
		return models.Stats{QueuedEvents: 2, ProcessedEvents: 7, Uptime: 90 * time.Second}
	}
	s := NewService(history.NewStore(), 0, time.Hour, 5*time.Millisecond, stats)
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	out := buf.String()
	assert.Contains(t, out, "Heartbeat - system active")
	assert.Contains(t, out, "events_queued=2")
	assert.Contains(t, out, "events_processed=7")
	assert.Contains(t, out, "uptime=1m30s")
}
