package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jimbolo/convtrack/pkg/models"
	"golang.org/x/text/currency"
)

// ValidateConfig checks the entire configuration for logical consistency.
// It expects defaults to have been applied.
func ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	if err := validateApplicationSettings(&cfg.Application); err != nil {
		return fmt.Errorf("invalid application settings: %w", err)
	}
	if err := validateDetection(&cfg.Detection); err != nil {
		return fmt.Errorf("invalid detection settings: %w", err)
	}
	if err := validateProcessing(&cfg.Processing); err != nil {
		return fmt.Errorf("invalid processing settings: %w", err)
	}
	if err := validateSink(&cfg.Sink); err != nil {
		return fmt.Errorf("invalid sink settings: %w", err)
	}
	if cfg.Ledger.NodeID < 0 || cfg.Ledger.NodeID > 1023 {
		return fmt.Errorf("invalid ledger settings: node_id must be between 0 and 1023")
	}
	if err := validateBeacon(&cfg.Beacon); err != nil {
		return fmt.Errorf("invalid beacon settings: %w", err)
	}
	return nil
}

func validateApplicationSettings(app *models.ApplicationSettings) error {
	if app.LogLevel != "" {
		level := strings.ToLower(app.LogLevel)
		if level != "debug" && level != "info" && level != "warn" && level != "error" {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", app.LogLevel)
		}
	}
	if app.LogFormat != "" {
		format := strings.ToLower(app.LogFormat)
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid log_format: %s (must be text or json)", app.LogFormat)
		}
	}
	return nil
}

func validateDetection(det *models.DetectionConfig) error {
	if len(det.PurchaseEndpoints) == 0 {
		return errors.New("purchase_endpoints cannot be empty")
	}
	if len(det.PurchaseKeywords) == 0 {
		return errors.New("purchase_keywords cannot be empty")
	}
	for _, list := range [][]string{det.PurchaseEndpoints, det.PurchaseKeywords, det.StorageKeys, det.CustomEvents} {
		for _, entry := range list {
			if strings.TrimSpace(entry) == "" {
				return errors.New("rule lists cannot contain empty entries")
			}
		}
	}
	if t := det.ConfidenceThreshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("confidence_threshold must be within [0, 1], got %v", *t)
	}
	if det.DedupWindow != nil && det.DedupWindow.Duration < 0 {
		return errors.New("dedup_window cannot be negative")
	}
	if det.RetentionWindow.Duration <= 0 {
		return errors.New("retention_window must be a positive duration")
	}
	return nil
}

func validateProcessing(proc *models.ProcessingConfig) error {
	intervals := map[string]models.Duration{
		"drain_interval":        proc.DrainInterval,
		"prune_interval":        proc.PruneInterval,
		"heartbeat_interval":    proc.HeartbeatInterval,
		"storage_poll_interval": proc.StoragePollInterval,
		"cookie_poll_interval":  proc.CookiePollInterval,
		"history_settle_delay":  proc.HistorySettleDelay,
	}
	for name, d := range intervals {
		if d.Duration <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	return nil
}

func validateSink(sink *models.SinkConfig) error {
	if sink.Endpoint != "" {
		u, err := url.Parse(sink.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint must be an absolute http(s) URL: %q", sink.Endpoint)
		}
	}
	if sink.DefaultCurrency != "" {
		if _, err := currency.ParseISO(sink.DefaultCurrency); err != nil {
			return fmt.Errorf("default_currency %q is not an ISO 4217 code: %w", sink.DefaultCurrency, err)
		}
	}
	if sink.Timeout.Duration < 0 {
		return errors.New("timeout cannot be negative")
	}
	return validateRetryPolicy(&sink.Retry, "retry")
}

func validateRetryPolicy(policy *models.RetryPolicy, fieldName string) error {
	if policy == nil {
		return nil
	}
	if policy.MaxRetries != nil && *policy.MaxRetries < 0 {
		return fmt.Errorf("%s: max_retries cannot be negative", fieldName)
	}
	if policy.Delay != nil && policy.Delay.Duration < 0 {
		return fmt.Errorf("%s: delay cannot be negative", fieldName)
	}
	return nil
}

func validateBeacon(b *models.BeaconConfig) error {
	if b.Path != "" && !strings.HasPrefix(b.Path, "/") {
		return fmt.Errorf("path must start with '/'")
	}
	if b.RateLimit != nil && *b.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive if set")
	}
	if b.Burst != nil && *b.Burst <= 0 {
		return fmt.Errorf("burst must be positive if set")
	}
	if b.RateLimit == nil && b.Burst != nil {
		return fmt.Errorf("burst cannot be set without rate_limit")
	}
	return nil
}
