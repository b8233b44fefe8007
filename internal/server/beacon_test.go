package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jimbolo/convtrack/internal/detector"
	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const beaconBody = `{"signals":[
	{"kind":"network","url":"https://shop.example/checkout","status":200,"body":"{\"order_id\":\"B1\"}"},
	{"kind":"custom","name":"purchase","detail":{"orderId":"B1","value":3}}
]}`

func TestBeacon_RoutesSignals(t *testing.T) {
	testInitLogger(t)
	d := &mockDetector{}
	server := NewHTTPServer(&models.Config{Beacon: models.BeaconConfig{Path: "/collect"}}, d, nil)

	rr := serve(server, http.MethodPost, "/collect", beaconBody)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	var res beaconResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, beaconResult{Applied: 2}, res)

	signals := d.Signals()
	require.Len(t, signals, 2)
	assert.Equal(t, detector.KindNetwork, signals[0].Kind)
	assert.Equal(t, 200, signals[0].Status)
	assert.Equal(t, detector.KindCustom, signals[1].Kind)
	assert.JSONEq(t, `{"orderId":"B1","value":3}`, string(signals[1].Detail))
}

func TestBeacon_PartialAndRejectedBatches(t *testing.T) {
	testInitLogger(t)
	d := &mockDetector{SignalsFunc: func(signals []detector.Signal) (int, error) {
		return len(signals) - 1, errors.New("signal 0 (teleport): unsupported signal")
	}}
	server := NewHTTPServer(&models.Config{}, d, nil)

	rr := serve(server, http.MethodPost, "/signals", beaconBody)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	var res beaconResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Rejected)
	assert.Contains(t, res.Error, "unsupported signal")

	rr = serve(server, http.MethodPost, "/signals", `{"signals":[{"kind":"teleport"}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBeacon_BadRequests(t *testing.T) {
	testInitLogger(t)
	server := NewHTTPServer(&models.Config{}, &mockDetector{}, nil)

	tests := []struct {
		name           string
		method         string
		body           string
		expectedStatus int
	}{
		{"Wrong Method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"Invalid JSON", http.MethodPost, `{"signals":`, http.StatusBadRequest},
		{"Empty Batch", http.MethodPost, `{"signals":[]}`, http.StatusNoContent},
		{"Too Large", http.MethodPost, `{"signals":[{"kind":"dom","html":"` + strings.Repeat("a", maxBodyBytes) + `"}]}`, http.StatusRequestEntityTooLarge},
		{"Preflight", http.MethodOptions, "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(server, tt.method, "/signals", tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestBeacon_AuthFail(t *testing.T) {
	testInitLogger(t)
	d := &mockDetector{}
	server := NewHTTPServer(&models.Config{Beacon: models.BeaconConfig{AuthToken: "secret1"}}, d, nil)

	rr := serve(server, http.MethodPost, "/signals", beaconBody)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "missing token")

	req := httptest.NewRequest(http.MethodPost, "/signals", strings.NewReader(beaconBody))
	req.Header.Set("Authorization", "Bearer wrongsecret")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "wrong token")
	assert.Empty(t, d.Signals())

	req = httptest.NewRequest(http.MethodPost, "/signals", strings.NewReader(beaconBody))
	req.Header.Set("Authorization", "Bearer secret1")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Len(t, d.Signals(), 2)
}

func TestBeacon_RateLimit(t *testing.T) {
	testInitLogger(t)
	rateLimit := 10.0
	burst := 1
	server := NewHTTPServer(&models.Config{Beacon: models.BeaconConfig{RateLimit: &rateLimit, Burst: &burst}}, &mockDetector{}, nil)
	require.NotNil(t, server.beacon.limiter)

	rr := serve(server, http.MethodPost, "/signals", beaconBody)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = serve(server, http.MethodPost, "/signals", beaconBody)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "immediate second request is rate limited")

	time.Sleep(150 * time.Millisecond)
	rr = serve(server, http.MethodPost, "/signals", beaconBody)
	assert.Equal(t, http.StatusAccepted, rr.Code, "token bucket refilled")
}

func TestNewBeaconHandler_DefaultBurst(t *testing.T) {
	rateLimit := 2.5
	h := newBeaconHandler(models.BeaconConfig{RateLimit: &rateLimit}, &mockDetector{})
	require.NotNil(t, h.limiter)
	assert.Equal(t, 3, h.limiter.Burst())
	assert.Equal(t, "/signals", h.path)
}
