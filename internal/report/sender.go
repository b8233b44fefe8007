package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jimbolo/convtrack/internal/action"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Sender delivers one conversion payload to the sink.
type Sender interface {
	Name() string
	Send(ctx context.Context, payload models.ConversionPayload) error
}

// HTTPSender is the primary reporting call: a JSON POST to the sink endpoint.
type HTTPSender struct {
	Endpoint string
	Client   *http.Client
	Timeout  time.Duration
}

// NewHTTPSender creates a primary sender. A nil client uses a dedicated
// client so the network source's wrapped transport never observes it.
func NewHTTPSender(endpoint string, client *http.Client, timeout time.Duration) *HTTPSender {
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return &HTTPSender{Endpoint: endpoint, Client: client, Timeout: timeout}
}

func (s *HTTPSender) Name() string { return "http" }

func (s *HTTPSender) Send(ctx context.Context, payload models.ConversionPayload) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sink request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink responded with status %d", resp.StatusCode)
	}
	return nil
}

// ScriptSender is the direct-send fallback that runs a configured script.
type ScriptSender struct {
	Script   string
	Executor *action.Executor
	Timeout  time.Duration
}

func (s *ScriptSender) Name() string { return "script" }

func (s *ScriptSender) Send(ctx context.Context, payload models.ConversionPayload) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	_, _, err := s.Executor.Execute(ctx, s.Script, Params(payload))
	return err
}

// LogSender is the direct-send fallback used when nothing else is configured.
// It only records the conversion in the log.
type LogSender struct{}

func (LogSender) Name() string { return "log" }

func (LogSender) Send(_ context.Context, payload models.ConversionPayload) error {
	logger.L().Info("Conversion (direct-send)", "send_to", payload.SendTo, "value", payload.Value,
		"currency", payload.Currency, "transaction_id", payload.TransactionID)
	return nil
}

// Params exposes a payload as script placeholder values.
func Params(payload models.ConversionPayload) map[string]string {
	return map[string]string{
		"send_to":        payload.SendTo,
		"value":          strconv.FormatFloat(payload.Value, 'f', -1, 64),
		"currency":       payload.Currency,
		"transaction_id": payload.TransactionID,
	}
}

// SelectSender returns the primary HTTP sender when an endpoint is configured,
// otherwise the direct-send fallback (script, else log-only).
func SelectSender(sink models.SinkConfig, client *http.Client) Sender {
	switch {
	case sink.Endpoint != "":
		return NewHTTPSender(sink.Endpoint, client, sink.Timeout.Duration)
	case sink.Script != "":
		return &ScriptSender{Script: sink.Script, Executor: action.NewExecutor(), Timeout: sink.Timeout.Duration}
	default:
		return LogSender{}
	}
}
