package models

import "time"

// Config is the root configuration structure for convtrack.
type Config struct {
	Application ApplicationSettings `yaml:"application"`
	Detection   DetectionConfig     `yaml:"detection"`
	Processing  ProcessingConfig    `yaml:"processing"`
	Sink        SinkConfig          `yaml:"sink"`
	Ledger      LedgerConfig        `yaml:"ledger"`
	Beacon      BeaconConfig        `yaml:"beacon"`
}

// ApplicationSettings holds global configuration settings for the application.
type ApplicationSettings struct {
	LogLevel         string `yaml:"log_level"`          // e.g., "debug", "info", "warn", "error"
	LogFormat        string `yaml:"log_format"`         // e.g., "text", "json"
	Debug            bool   `yaml:"debug"`              // Forces debug level, enabling diagnostic logs
	ListenAddress    string `yaml:"listen_address"`     // Address of the daemon HTTP server
	QueuePersistPath string `yaml:"queue_persist_path"` // Path to save pending events on shutdown
	PIDFilePath      string `yaml:"pid_file_path"`      // Path to store the process ID
	EnvFile          string `yaml:"env_file"`           // Optional .env file with sink overrides
}

// DetectionConfig holds the rules signal sources use to decide whether an
// occurrence is possibly purchase related.
type DetectionConfig struct {
	PurchaseEndpoints   []string  `yaml:"purchase_endpoints"`   // URL fragments, case-insensitive substring match
	PurchaseKeywords    []string  `yaml:"purchase_keywords"`    // Keywords matched against keys or serialized payloads
	StorageKeys         []string  `yaml:"storage_keys"`         // Storage keys to watch
	CustomEvents        []string  `yaml:"custom_events"`        // Custom event names to listen for
	ConfidenceThreshold *float64  `yaml:"confidence_threshold"` // Minimum score to report a conversion
	DedupWindow         *Duration `yaml:"dedup_window"`         // Window in which a shared order id is a duplicate; 0 disables dedup
	RetentionWindow     Duration  `yaml:"retention_window"`     // Age after which history entries are pruned
}

// ProcessingConfig holds the intervals of the periodic tasks.
type ProcessingConfig struct {
	DrainInterval       Duration `yaml:"drain_interval"`
	PruneInterval       Duration `yaml:"prune_interval"`
	HeartbeatInterval   Duration `yaml:"heartbeat_interval"`
	StoragePollInterval Duration `yaml:"storage_poll_interval"`
	CookiePollInterval  Duration `yaml:"cookie_poll_interval"`
	HistorySettleDelay  Duration `yaml:"history_settle_delay"`
}

// SinkConfig describes the external conversion sink.
type SinkConfig struct {
	ConversionID    string      `yaml:"conversion_id"`
	ConversionLabel string      `yaml:"conversion_label"`
	Endpoint        string      `yaml:"endpoint"`         // Primary reporting call (JSON POST); optional
	Script          string      `yaml:"script"`           // Direct-send fallback script; optional
	DefaultCurrency string      `yaml:"default_currency"` // ISO-4217 code used when none was extracted
	Timeout         Duration    `yaml:"timeout"`
	Retry           RetryPolicy `yaml:"retry"`
}

// LedgerConfig selects where conversion records are kept.
type LedgerConfig struct {
	Path   string `yaml:"path"`    // SQLite file; empty keeps records in memory
	NodeID int64  `yaml:"node_id"` // Snowflake node for record ids
}

// BeaconConfig configures the HTTP endpoint browsers post observations to.
type BeaconConfig struct {
	Path      string   `yaml:"path"`
	AuthToken string   `yaml:"auth_token"` // Optional bearer token
	RateLimit *float64 `yaml:"rate_limit"` // Optional requests per second (token bucket rate)
	Burst     *int     `yaml:"burst"`      // Optional burst size (token bucket capacity)
}

// RetryPolicy defines the parameters for retrying failed conversion dispatches.
// Pointers distinguish an explicit zero from an unset value.
type RetryPolicy struct {
	MaxRetries *int      `yaml:"max_retries"` // Max number of retries after the first attempt
	Delay      *Duration `yaml:"delay"`       // Base delay; attempt n waits Delay*n
}

// Duration is a wrapper around time.Duration to allow parsing from YAML strings
// like "10s", "5m", "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	var err error
	d.Duration, err = time.ParseDuration(s)
	return err
}

// MarshalYAML renders the duration in the same form it is parsed from.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}
