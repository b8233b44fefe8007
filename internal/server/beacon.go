package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/jimbolo/convtrack/internal/config"
	"github.com/jimbolo/convtrack/internal/detector"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

// beaconResult is returned for an accepted beacon batch.
type beaconResult struct {
	Applied  int    `json:"applied"`
	Rejected int    `json:"rejected"`
	Error    string `json:"error,omitempty"`
}

// beaconHandler receives observation batches posted by browsers.
type beaconHandler struct {
	path     string
	token    string
	limiter  *rate.Limiter // nil when unlimited
	detector Detector
}

func newBeaconHandler(cfg models.BeaconConfig, d Detector) *beaconHandler {
	h := &beaconHandler{path: cfg.Path, token: cfg.AuthToken, detector: d}
	if h.path == "" {
		h.path = config.DefaultBeaconPath
	}
	if cfg.RateLimit != nil {
		burst := int(math.Ceil(*cfg.RateLimit))
		if cfg.Burst != nil {
			burst = *cfg.Burst
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(*cfg.RateLimit), burst)
	}
	return h
}

func (h *beaconHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := logger.L().With("path", h.path, "remote_addr", r.RemoteAddr)
	w.Header().Set("Access-Control-Allow-Origin", "*")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		l.Warn("Unauthorized beacon request")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		l.Warn("Beacon rate limit exceeded")
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	var batch detector.Batch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&batch); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		l.Debug("Invalid beacon body", "error", err)
		http.Error(w, http.StatusText(http.StatusBadRequest)+": invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(batch.Signals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	applied, err := h.detector.HandleSignals(batch.Signals)
	res := beaconResult{Applied: applied, Rejected: len(batch.Signals) - applied}
	if err != nil {
		res.Error = err.Error()
	}
	if applied == 0 {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// authorized checks the bearer token when one is configured.
func (h *beaconHandler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}
