package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Setting ranges. Timeouts accept zero to disable the feature,
// otherwise the value must fall inside the range.
const (
	DefaultStaleTimeoutSec = 300
	MinStaleTimeoutSec     = 10
	MaxStaleTimeoutSec     = 3600

	DefaultQueryPaceMs = 100
	MinQueryPaceMs     = 20
	MaxQueryPaceMs     = 1000

	DefaultScreenTimeoutSec = 60
	MinScreenTimeoutSec     = 10
	MaxScreenTimeoutSec     = 3600
)

// Default file locations.
const (
	DefaultNodeIDFile   = "nodeid.txt"
	DefaultTurnoutsFile = "turnouts.json"
)

// ErrInvalidConfig indicates a setting outside its allowed range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the panel configuration.
type Config struct {
	// HubAddress is the GridConnect hub "host:port". Empty enables
	// mDNS discovery.
	HubAddress string `yaml:"hub_address"`

	// NodeIDFile is the path of the node ID text file.
	NodeIDFile string `yaml:"node_id_file"`

	// TurnoutsFile is the path of the turnout list.
	TurnoutsFile string `yaml:"turnouts_file"`

	// JMRIImportFile is an optional JMRI layout XML to merge on boot.
	JMRIImportFile string `yaml:"jmri_import_file"`

	// TraceFile is an optional bus capture file. Empty disables capture.
	TraceFile string `yaml:"trace_file"`

	// StaleTimeoutSec marks turnouts stale after this many seconds
	// without feedback. Zero disables stale marking.
	StaleTimeoutSec uint16 `yaml:"stale_timeout_sec"`

	// QueryPaceMs is the interval between state queries during refresh.
	QueryPaceMs uint16 `yaml:"query_pace_ms"`

	// ScreenTimeoutSec turns the backlight off after this many idle
	// seconds. Zero keeps the screen always on.
	ScreenTimeoutSec uint16 `yaml:"screen_timeout_sec"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		NodeIDFile:       DefaultNodeIDFile,
		TurnoutsFile:     DefaultTurnoutsFile,
		StaleTimeoutSec:  DefaultStaleTimeoutSec,
		QueryPaceMs:      DefaultQueryPaceMs,
		ScreenTimeoutSec: DefaultScreenTimeoutSec,
	}
}

// Load reads the configuration file, fills unset fields with defaults
// and validates the result. A missing file returns Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every setting against its allowed range.
func (c Config) Validate() error {
	if c.StaleTimeoutSec != 0 &&
		(c.StaleTimeoutSec < MinStaleTimeoutSec || c.StaleTimeoutSec > MaxStaleTimeoutSec) {
		return fmt.Errorf("%w: stale_timeout_sec %d outside 0 or %d..%d",
			ErrInvalidConfig, c.StaleTimeoutSec, MinStaleTimeoutSec, MaxStaleTimeoutSec)
	}
	if c.QueryPaceMs < MinQueryPaceMs || c.QueryPaceMs > MaxQueryPaceMs {
		return fmt.Errorf("%w: query_pace_ms %d outside %d..%d",
			ErrInvalidConfig, c.QueryPaceMs, MinQueryPaceMs, MaxQueryPaceMs)
	}
	if c.ScreenTimeoutSec != 0 &&
		(c.ScreenTimeoutSec < MinScreenTimeoutSec || c.ScreenTimeoutSec > MaxScreenTimeoutSec) {
		return fmt.Errorf("%w: screen_timeout_sec %d outside 0 or %d..%d",
			ErrInvalidConfig, c.ScreenTimeoutSec, MinScreenTimeoutSec, MaxScreenTimeoutSec)
	}
	if c.NodeIDFile == "" {
		return fmt.Errorf("%w: node_id_file must not be empty", ErrInvalidConfig)
	}
	if c.TurnoutsFile == "" {
		return fmt.Errorf("%w: turnouts_file must not be empty", ErrInvalidConfig)
	}
	return nil
}

// StaleTimeout returns the stale timeout as a duration, zero when
// disabled.
func (c Config) StaleTimeout() time.Duration {
	return time.Duration(c.StaleTimeoutSec) * time.Second
}

// QueryPace returns the query pace as a duration.
func (c Config) QueryPace() time.Duration {
	return time.Duration(c.QueryPaceMs) * time.Millisecond
}

// ScreenTimeout returns the backlight timeout as a duration, zero
// when the screen stays on.
func (c Config) ScreenTimeout() time.Duration {
	return time.Duration(c.ScreenTimeoutSec) * time.Second
}
