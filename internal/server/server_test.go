package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jimbolo/convtrack/internal/detector"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testInitLogger initializes the logger for test execution, discarding output.
func testInitLogger(t *testing.T) {
	t.Helper()
	settings := models.ApplicationSettings{LogLevel: "error", LogFormat: "text"}
	err := logger.Init(settings, io.Discard)
	require.NoError(t, err, "Failed to initialize logger for test")
}

// --- Mock Detector ---
type mockDetector struct {
	TriggerFunc func(data models.PurchaseData) error
	SignalsFunc func(signals []detector.Signal) (int, error)

	mu       sync.Mutex
	triggers []models.PurchaseData
	signals  []detector.Signal
}

func (m *mockDetector) ManualTrigger(data models.PurchaseData) error {
	m.mu.Lock()
	m.triggers = append(m.triggers, data)
	m.mu.Unlock()
	if m.TriggerFunc != nil {
		return m.TriggerFunc(data)
	}
	return nil
}

func (m *mockDetector) Stats() models.Stats {
	return models.Stats{QueuedEvents: 2, ProcessedEvents: 7, HistorySize: 5, Conversions: 1, Uptime: time.Minute}
}

func (m *mockDetector) HandleSignals(signals []detector.Signal) (int, error) {
	m.mu.Lock()
	m.signals = append(m.signals, signals...)
	m.mu.Unlock()
	if m.SignalsFunc != nil {
		return m.SignalsFunc(signals)
	}
	return len(signals), nil
}

func (m *mockDetector) Triggers() []models.PurchaseData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PurchaseData(nil), m.triggers...)
}

func (m *mockDetector) Signals() []detector.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]detector.Signal(nil), m.signals...)
}

func serve(s *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

// --- Tests ---

func TestNewHTTPServer(t *testing.T) {
	testInitLogger(t)
	server := NewHTTPServer(&models.Config{}, &mockDetector{}, nil)

	require.NotNil(t, server)
	require.NotNil(t, server.mux)
	assert.Equal(t, "127.0.0.1:8123", server.server.Addr, "default listen address")
	assert.Equal(t, "/signals", server.beacon.path, "default beacon path")
	assert.Nil(t, server.beacon.limiter)

	for _, path := range []string{HealthPath, TriggerPath, StatsPath, ReloadPath, "/signals"} {
		_, pattern := server.mux.Handler(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, path, pattern, "route %s registered", path)
	}
}

// Helper to find a free port
func getFreePort(t *testing.T) string {
	t.Helper()
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	require.NoError(t, err)
	l, err := net.ListenTCP("tcp", addr)
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestServer_StartStop(t *testing.T) {
	testInitLogger(t)
	freeAddr := getFreePort(t)
	cfg := &models.Config{Application: models.ApplicationSettings{ListenAddress: freeAddr}}
	server := NewHTTPServer(cfg, &mockDetector{}, nil)

	server.Start()
	server.Start() // second start is a no-op

	var resp *http.Response
	var err error
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	for i := 0; i < 20; i++ {
		resp, err = client.Get("http://" + freeAddr + HealthPath)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err, "Server did not start listening on %s", freeAddr)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx), "Server stop should not return an error")

	select {
	case <-server.Done():
	case <-time.After(time.Second):
		t.Fatal("server goroutine did not exit")
	}
	_, err = net.DialTimeout("tcp", freeAddr, 200*time.Millisecond)
	require.Error(t, err, "Server should not be listening after Stop()")

	require.NoError(t, server.Stop(ctx), "Stopping an already stopped server should not error")
}

func TestServer_Stop_Timeout(t *testing.T) {
	testInitLogger(t)
	freeAddr := getFreePort(t)
	cfg := &models.Config{Application: models.ApplicationSettings{ListenAddress: freeAddr}}
	server := NewHTTPServer(cfg, &mockDetector{}, nil)

	release := make(chan struct{})
	defer close(release)
	server.mux.HandleFunc("/hang", func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	server.Start()

	var conn net.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, err = net.DialTimeout("tcp", freeAddr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err, "Server did not start listening on %s", freeAddr)

	go func() {
		resp, err := http.Get("http://" + freeAddr + "/hang")
		if err == nil {
			resp.Body.Close()
		}
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = server.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "Server stop should return DeadlineExceeded error")
}

// --- Handler Tests ---

func TestServer_HandleHealth(t *testing.T) {
	testInitLogger(t)
	server := NewHTTPServer(&models.Config{}, &mockDetector{}, nil)

	rr := serve(server, http.MethodGet, HealthPath, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = serve(server, http.MethodPost, HealthPath, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServer_HandleTrigger_Success(t *testing.T) {
	testInitLogger(t)
	d := &mockDetector{}
	server := NewHTTPServer(&models.Config{}, d, nil)

	rr := serve(server, http.MethodPost, TriggerPath, `{"order_id": "M1", "value": 19.5, "currency": "EUR", "items": ["sku-1"]}`)

	assert.Equal(t, http.StatusAccepted, rr.Code, "Response code should be 202 Accepted")
	triggers := d.Triggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, "M1", triggers[0].OrderID)
	require.NotNil(t, triggers[0].Value)
	assert.Equal(t, 19.5, *triggers[0].Value)
	assert.Equal(t, "EUR", triggers[0].Currency)
	assert.Equal(t, []any{"sku-1"}, triggers[0].Items)
}

func TestServer_HandleTrigger_BadRequest(t *testing.T) {
	testInitLogger(t)
	d := &mockDetector{}
	server := NewHTTPServer(&models.Config{}, d, nil)

	tests := []struct {
		name           string
		method         string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{"Wrong Method", http.MethodGet, "", http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"Invalid JSON", http.MethodPost, `{"order_id": "x",`, http.StatusBadRequest, "Bad Request"},
		{"Missing OrderID And Value", http.MethodPost, `{"currency": "USD"}`, http.StatusBadRequest, "missing order_id or value"},
		{"Empty Body", http.MethodPost, "", http.StatusBadRequest, "Bad Request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(server, tt.method, TriggerPath, tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
	assert.Empty(t, d.Triggers(), "Detector should not be called on bad request")
}

func TestServer_HandleTrigger_DetectorError(t *testing.T) {
	testInitLogger(t)
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"internal error", errors.New("queue exploded"), http.StatusInternalServerError},
		{"destroyed", detector.ErrDestroyed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDetector{TriggerFunc: func(models.PurchaseData) error { return tt.err }}
			server := NewHTTPServer(&models.Config{}, d, nil)
			rr := serve(server, http.MethodPost, TriggerPath, `{"order_id": "E1"}`)
			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Len(t, d.Triggers(), 1)
		})
	}
}

func TestServer_HandleStats(t *testing.T) {
	testInitLogger(t)
	server := NewHTTPServer(&models.Config{}, &mockDetector{}, nil)

	rr := serve(server, http.MethodGet, StatsPath, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var st models.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, models.Stats{QueuedEvents: 2, ProcessedEvents: 7, HistorySize: 5, Conversions: 1, Uptime: time.Minute}, st)

	rr = serve(server, http.MethodPost, StatsPath, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServer_HandleReload(t *testing.T) {
	testInitLogger(t)
	calls := 0
	server := NewHTTPServer(&models.Config{}, &mockDetector{}, func() error {
		calls++
		if calls > 1 {
			return errors.New("bad config")
		}
		return nil
	})

	rr := serve(server, http.MethodPost, ReloadPath, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Configuration reloaded")

	rr = serve(server, http.MethodPost, ReloadPath, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "bad config")

	rr = serve(server, http.MethodGet, ReloadPath, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, 2, calls)

	noReload := NewHTTPServer(&models.Config{}, &mockDetector{}, nil)
	rr = serve(noReload, http.MethodPost, ReloadPath, "")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}
