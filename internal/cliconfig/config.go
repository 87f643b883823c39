package cliconfig

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/aprsship/internal/adapters/aprs"
	"github.com/bft-labs/aprsship/internal/domain"
)

// Defaults for the CLI.
const (
	DefaultHost        = "rotate.aprs2.net"
	DefaultPort        = 14580
	DefaultStoreDriver = "sqlite"
	DefaultStoreDSN    = "aprs.sqlite"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds CLI configuration for aprsship.
type Config struct {
	Host     string
	Port     int
	Callsign string
	Passcode string
	Filter   string

	Software string
	Version  string

	StoreDriver string
	StoreDSN    string

	DedupHorizon    time.Duration
	DedupBucket     time.Duration
	DedupMaxEntries int

	ConnectTimeout     time.Duration
	LoginTimeout       time.Duration
	Liveness           time.Duration
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	BackoffJitter      float64
	BackoffStableAfter time.Duration
	MaxStartupAttempts int
	MaxLineLength      int

	QueueSize         int
	BatchSize         int
	FlushInterval     time.Duration
	StorageRetries    int
	StorageRetryDelay time.Duration
	GracePeriod       time.Duration

	DecodeFailureThreshold int
	DecodeFailureWindow    time.Duration

	StatsInterval time.Duration
	StateDir      string
	MetricsAddr   string
	Retention     time.Duration
	WatchConfig   bool
	LogLevel      string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Host:                   DefaultHost,
		Port:                   DefaultPort,
		Software:               "aprsship",
		Version:                "dev",
		StoreDriver:            DefaultStoreDriver,
		StoreDSN:               DefaultStoreDSN,
		DedupHorizon:           30 * time.Second,
		DedupBucket:            10 * time.Minute,
		DedupMaxEntries:        100000,
		ConnectTimeout:         10 * time.Second,
		LoginTimeout:           15 * time.Second,
		Liveness:               60 * time.Second,
		BackoffMin:             time.Second,
		BackoffMax:             2 * time.Minute,
		BackoffJitter:          0.2,
		BackoffStableAfter:     60 * time.Second,
		MaxStartupAttempts:     10,
		MaxLineLength:          2048,
		QueueSize:              1024,
		BatchSize:              200,
		FlushInterval:          2 * time.Second,
		StorageRetries:         3,
		StorageRetryDelay:      200 * time.Millisecond,
		GracePeriod:            10 * time.Second,
		DecodeFailureThreshold: 100,
		DecodeFailureWindow:    time.Minute,
		StatsInterval:          60 * time.Second,
		WatchConfig:            true,
		LogLevel:               "info",
	}
}

// Addr returns the server address as host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration for errors and sets derived defaults.
// Every failure is a *domain.ConfigError.
func (c *Config) Validate() error {
	c.Callsign = strings.ToUpper(strings.TrimSpace(c.Callsign))
	if c.Callsign == "" {
		return &domain.ConfigError{Field: "callsign", Reason: "is required"}
	}
	if c.Host == "" {
		return &domain.ConfigError{Field: "host", Reason: "is required"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &domain.ConfigError{Field: "port", Reason: fmt.Sprintf("%d is outside 1..65535", c.Port)}
	}

	if c.Passcode == "" {
		c.Passcode = aprs.Passcode(c.Callsign)
	}
	if _, err := strconv.Atoi(c.Passcode); err != nil {
		return &domain.ConfigError{Field: "passcode", Reason: "must be numeric"}
	}

	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return &domain.ConfigError{Field: "db-driver", Reason: fmt.Sprintf("unknown driver %q", c.StoreDriver)}
	}
	if c.StoreDSN == "" {
		return &domain.ConfigError{Field: "db", Reason: "is required"}
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"dedup-horizon", c.DedupHorizon},
		{"dedup-bucket", c.DedupBucket},
		{"connect-timeout", c.ConnectTimeout},
		{"login-timeout", c.LoginTimeout},
		{"liveness", c.Liveness},
		{"backoff-min", c.BackoffMin},
		{"backoff-max", c.BackoffMax},
		{"backoff-stable-after", c.BackoffStableAfter},
		{"flush-interval", c.FlushInterval},
		{"storage-retry-delay", c.StorageRetryDelay},
		{"grace-period", c.GracePeriod},
		{"decode-failure-window", c.DecodeFailureWindow},
		{"stats-interval", c.StatsInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return &domain.ConfigError{Field: d.field, Reason: "must be positive"}
		}
	}
	if c.BackoffMax < c.BackoffMin {
		return &domain.ConfigError{Field: "backoff-max", Reason: "must not be less than backoff-min"}
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= 1 {
		return &domain.ConfigError{Field: "backoff-jitter", Reason: "must be in [0,1)"}
	}
	if c.Retention < 0 {
		return &domain.ConfigError{Field: "retention", Reason: "must not be negative"}
	}

	counts := []struct {
		field string
		value int
	}{
		{"dedup-max-entries", c.DedupMaxEntries},
		{"max-line-length", c.MaxLineLength},
		{"queue-size", c.QueueSize},
		{"batch-size", c.BatchSize},
		{"decode-failure-threshold", c.DecodeFailureThreshold},
	}
	for _, n := range counts {
		if n.value <= 0 {
			return &domain.ConfigError{Field: n.field, Reason: "must be positive"}
		}
	}
	if c.MaxStartupAttempts < 0 {
		return &domain.ConfigError{Field: "max-startup-attempts", Reason: "must not be negative"}
	}
	if c.StorageRetries < 0 {
		return &domain.ConfigError{Field: "storage-retries", Reason: "must not be negative"}
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return &domain.ConfigError{Field: "log-level", Reason: err.Error()}
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int where zero is meaningful.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloatPtr sets a float64 where zero is meaningful.
func (s *configSetter) setFloatPtr(flag string, value *float64, dst *float64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Zero and negative values are ignored unless allowZero is set, in which
// case only negative values are.
func (s *configSetter) setIntFromString(flag, value string, dst *int, allowZero bool) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 || (i == 0 && !allowZero) {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination.
// Negative values are ignored.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f < 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
