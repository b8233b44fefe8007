// Package server exposes the detector over HTTP: browser beacons, manual
// triggers, stats and config reload.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jimbolo/convtrack/internal/config"
	"github.com/jimbolo/convtrack/internal/detector"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Control routes served next to the beacon endpoint.
const (
	HealthPath  = "/healthz"
	TriggerPath = "/convtrack/trigger"
	StatsPath   = "/convtrack/stats"
	ReloadPath  = "/convtrack/reload"
)

// Detector is the part of the detector the server drives.
type Detector interface {
	ManualTrigger(data models.PurchaseData) error
	Stats() models.Stats
	HandleSignals(signals []detector.Signal) (int, error)
}

// ReloadFunc re-reads the configuration and applies it to the running
// detector.
type ReloadFunc func() error

// TriggerRequest is the body of a manual trigger.
type TriggerRequest struct {
	OrderID  string   `json:"order_id"`
	Value    *float64 `json:"value"`
	Currency string   `json:"currency"`
	Items    []any    `json:"items"`
}

// HTTPServer is the daemon's HTTP surface.
type HTTPServer struct {
	mux      *http.ServeMux
	server   *http.Server
	detector Detector
	reload   ReloadFunc
	beacon   *beaconHandler

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewHTTPServer creates the server and registers its routes. reload may be
// nil, in which case reload requests are refused.
func NewHTTPServer(cfg *models.Config, d Detector, reload ReloadFunc) *HTTPServer {
	addr := cfg.Application.ListenAddress
	if addr == "" {
		addr = config.DefaultListenAddress
	}
	mux := http.NewServeMux()
	s := &HTTPServer{
		mux:      mux,
		detector: d,
		reload:   reload,
		beacon:   newBeaconHandler(cfg.Beacon, d),
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.Handle(s.beacon.path, s.beacon)
	mux.HandleFunc(TriggerPath, s.handleTrigger)
	mux.HandleFunc(StatsPath, s.handleStats)
	mux.HandleFunc(ReloadPath, s.handleReload)
	return s
}

// Start begins serving in the background.
func (s *HTTPServer) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	l := logger.L()
	l.Info("Starting HTTP server", "address", s.server.Addr, "beacon_path", s.beacon.path)
	go func() {
		defer close(done)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("HTTP server failed", "error", err)
		}
	}()
}

// Done is closed once the server has stopped listening. It is nil before
// Start.
func (s *HTTPServer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop shuts the server down gracefully, waiting for in-flight requests
// until ctx expires. Stopping a stopped server is a no-op.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	logger.L().Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *HTTPServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	l := logger.L().With("path", r.URL.Path)
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		l.Warn("Invalid trigger request", "error", err)
		http.Error(w, http.StatusText(http.StatusBadRequest)+": invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" && req.Value == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest)+": missing order_id or value", http.StatusBadRequest)
		return
	}

	data := models.PurchaseData{OrderID: req.OrderID, Value: req.Value, Currency: req.Currency, Items: req.Items}
	if err := s.detector.ManualTrigger(data); err != nil {
		l.Error("Manual trigger failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, detector.ErrDestroyed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	l.Info("Manual trigger accepted", "order_id", req.OrderID)
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("Trigger accepted"))
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.detector.Stats())
}

func (s *HTTPServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if s.reload == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	if err := s.reload(); err != nil {
		logger.L().Error("Configuration reload failed", "error", err)
		http.Error(w, "Reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write([]byte("Configuration reloaded"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warn("Failed to write JSON response", "error", err)
	}
}
