package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/jimbolo/convtrack/internal/extract"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
)

// DefaultMaxBody caps how much of a response body is buffered for inspection.
const DefaultMaxBody = 1 << 20

// NetworkSource observes successful responses from purchase endpoints by
// wrapping the RoundTripper of an http.Client. Install it before the client
// is shared between goroutines.
type NetworkSource struct {
	rules   Rules
	client  *http.Client
	MaxBody int64

	out      outlet
	mu       sync.Mutex
	original http.RoundTripper
	wrapped  bool
}

// NewNetworkSource creates a source for client.
func NewNetworkSource(client *http.Client, rules Rules) *NetworkSource {
	return &NetworkSource{rules: rules, client: client, MaxBody: DefaultMaxBody, out: outlet{name: "network"}}
}

func (s *NetworkSource) Name() string { return "network" }

func (s *NetworkSource) Install(q Enqueuer) error {
	if s.client == nil {
		return errors.New("no http client to observe")
	}
	if err := s.out.attach(q); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original = s.client.Transport
	next := s.original
	if next == nil {
		next = http.DefaultTransport
	}
	s.client.Transport = &observingTransport{next: next, src: s}
	s.wrapped = true
	return nil
}

// Uninstall puts back the exact RoundTripper value found at Install,
// including a nil one.
func (s *NetworkSource) Uninstall() error {
	s.out.detach()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wrapped {
		return nil
	}
	s.client.Transport = s.original
	s.original = nil
	s.wrapped = false
	return nil
}

// Observe inspects a response completed elsewhere, e.g. reported by a browser
// beacon. Only 2xx responses from purchase endpoints are considered.
func (s *NetworkSource) Observe(rawURL string, status int, body []byte) bool {
	defer s.out.guard()
	if status < 200 || status >= 300 || !s.rules.Matcher.IsPurchaseEndpoint(rawURL) {
		return false
	}
	return s.observe(rawURL, body)
}

func (s *NetworkSource) observe(rawURL string, body []byte) bool {
	data := s.rules.Extractor.Extract(extract.Text(body))
	if data == nil {
		logger.L().Debug("Purchase endpoint response carried no purchase data", "url", rawURL)
		return false
	}
	return s.out.emit(NewEvent(models.SourceNetwork, models.EventTypePurchaseResponse, data, map[string]string{"url": rawURL}))
}

// observingTransport delegates every request to next exactly once and tees
// purchase-endpoint response bodies as the caller reads them.
type observingTransport struct {
	next http.RoundTripper
	src  *NetworkSource
}

func (t *observingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil || resp.Body == nil {
		return resp, err
	}
	rawURL := req.URL.String()
	if !t.src.out.attached() || resp.StatusCode < 200 || resp.StatusCode >= 300 || !t.src.rules.Matcher.IsPurchaseEndpoint(rawURL) {
		return resp, err
	}
	logger.L().Debug("Purchase endpoint response observed", "url", rawURL, "status", resp.StatusCode)
	resp.Body = &teeBody{
		rc:    resp.Body,
		limit: t.src.MaxBody,
		done: func(b []byte) {
			defer t.src.out.guard()
			t.src.observe(rawURL, b)
		},
	}
	return resp, err
}

// teeBody copies what the caller reads and hands the copy to done once the
// body has been read to EOF. Close never reads further: a body closed early is
// inspected only when the bytes already read form a complete JSON document.
// Bodies larger than limit are not inspected.
type teeBody struct {
	rc       io.ReadCloser
	limit    int64
	buf      bytes.Buffer
	overflow bool
	eof      bool
	once     sync.Once
	done     func([]byte)
}

func (b *teeBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 && !b.overflow {
		if int64(b.buf.Len()+n) > b.limit {
			b.overflow = true
			b.buf.Reset()
		} else {
			b.buf.Write(p[:n])
		}
	}
	if errors.Is(err, io.EOF) {
		b.eof = true
		b.finish()
	}
	return n, err
}

func (b *teeBody) Close() error {
	err := b.rc.Close()
	b.finish()
	return err
}

func (b *teeBody) finish() {
	b.once.Do(func() {
		if b.overflow || b.buf.Len() == 0 {
			return
		}
		if !b.eof && !json.Valid(b.buf.Bytes()) {
			return
		}
		b.done(b.buf.Bytes())
	})
}
