package config

import (
	"time"

	"github.com/jimbolo/convtrack/pkg/models"
)

// Defaults for every tunable.
var (
	DefaultPurchaseEndpoints = []string{"/checkout", "/purchase", "/order-complete", "/thank-you", "/confirmation"}
	DefaultPurchaseKeywords  = []string{"order_id", "transaction_id", "purchase", "payment_complete", "checkout_success"}
	DefaultStorageKeys       = []string{"cart_data", "purchase_data", "checkout_complete", "order_info"}
	DefaultCustomEvents      = []string{"purchase", "checkout", "order_complete", "payment_success"}
)

const (
	DefaultConfidenceThreshold = 0.7
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = time.Second
	DefaultDedupWindow         = 30 * time.Second
	DefaultRetentionWindow     = 24 * time.Hour
	DefaultDrainInterval       = 100 * time.Millisecond
	DefaultPruneInterval       = time.Minute
	DefaultHeartbeatInterval   = 60 * time.Second
	DefaultStoragePollInterval = time.Second
	DefaultCookiePollInterval  = 2 * time.Second
	DefaultHistorySettleDelay  = 500 * time.Millisecond
	DefaultSinkTimeout         = 10 * time.Second
	DefaultCurrency            = "USD"
	DefaultListenAddress       = "127.0.0.1:8123"
	DefaultBeaconPath          = "/signals"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// ApplyDefaults fills every unset field of cfg in place.
func ApplyDefaults(cfg *models.Config) {
	app := &cfg.Application
	setString(&app.LogLevel, DefaultLogLevel)
	setString(&app.LogFormat, DefaultLogFormat)
	setString(&app.ListenAddress, DefaultListenAddress)

	det := &cfg.Detection
	setStrings(&det.PurchaseEndpoints, DefaultPurchaseEndpoints)
	setStrings(&det.PurchaseKeywords, DefaultPurchaseKeywords)
	setStrings(&det.StorageKeys, DefaultStorageKeys)
	setStrings(&det.CustomEvents, DefaultCustomEvents)
	if det.ConfidenceThreshold == nil {
		t := DefaultConfidenceThreshold
		det.ConfidenceThreshold = &t
	}
	if det.DedupWindow == nil {
		det.DedupWindow = &models.Duration{Duration: DefaultDedupWindow}
	}
	setDuration(&det.RetentionWindow, DefaultRetentionWindow)

	proc := &cfg.Processing
	setDuration(&proc.DrainInterval, DefaultDrainInterval)
	setDuration(&proc.PruneInterval, DefaultPruneInterval)
	setDuration(&proc.HeartbeatInterval, DefaultHeartbeatInterval)
	setDuration(&proc.StoragePollInterval, DefaultStoragePollInterval)
	setDuration(&proc.CookiePollInterval, DefaultCookiePollInterval)
	setDuration(&proc.HistorySettleDelay, DefaultHistorySettleDelay)

	sink := &cfg.Sink
	setString(&sink.DefaultCurrency, DefaultCurrency)
	setDuration(&sink.Timeout, DefaultSinkTimeout)
	if sink.Retry.MaxRetries == nil {
		n := DefaultMaxRetries
		sink.Retry.MaxRetries = &n
	}
	if sink.Retry.Delay == nil {
		sink.Retry.Delay = &models.Duration{Duration: DefaultRetryDelay}
	}

	setString(&cfg.Beacon.Path, DefaultBeaconPath)
}

func setString(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

func setStrings(field *[]string, def []string) {
	if len(*field) == 0 {
		*field = append([]string(nil), def...)
	}
}

func setDuration(field *models.Duration, def time.Duration) {
	if field.Duration == 0 {
		field.Duration = def
	}
}
