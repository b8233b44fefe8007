package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/jimbolo/convtrack/internal/config"
)

// daemonClient talks to the control routes of a running daemon.
type daemonClient struct {
	baseURL string
	http    *http.Client
}

// newDaemonClient resolves the daemon address from --addr, else from the
// config file, else the default listen address.
func newDaemonClient() (*daemonClient, error) {
	addr := daemonAddr
	if addr == "" {
		cfg, err := config.LoadConfig(getConfigPath())
		switch {
		case err == nil:
			addr = cfg.Application.ListenAddress
		case errors.Is(err, fs.ErrNotExist):
			addr = config.DefaultListenAddress
		default:
			return nil, fmt.Errorf("loading configuration from '%s': %w", getConfigPath(), err)
		}
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &daemonClient{
		baseURL: strings.TrimSuffix(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *daemonClient) get(path string) ([]byte, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *daemonClient) post(path string, body []byte) ([]byte, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *daemonClient) do(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to daemon at %s: %w (is the convtrack daemon running?)", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading daemon response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, fmt.Errorf("daemon returned status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
