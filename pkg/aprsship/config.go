package aprsship

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/bft-labs/aprsship/internal/app"
	"github.com/bft-labs/aprsship/internal/batch"
	"github.com/bft-labs/aprsship/internal/dedup"
	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/internal/framing"
)

// Store drivers understood by New when no store is injected.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultAddr is the APRS-IS rotate address for filtered feeds.
const DefaultAddr = "rotate.aprs2.net:14580"

// Config holds the configuration for an ingestion client.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// Addr is the APRS-IS server host:port.
	Addr string

	// Callsign is the login identity. Required.
	Callsign string

	// Passcode is sent verbatim; empty logs in receive-only ("-1").
	Passcode string

	// Filter is the server-side filter sent at login. Change it at runtime
	// with Client.SetFilter.
	Filter string

	// Software and Version identify the client in the login line.
	Software string
	Version  string

	// StoreDriver and StoreDSN select the frame store when WithStore is
	// not used. SQLite takes a file path, PostgreSQL a connection string.
	StoreDriver string
	StoreDSN    string

	// StateDir receives status.json. Empty disables the status file
	// unless WithStatusRepository is used.
	StateDir string

	// ConfigPath is the TOML file plugins may watch. Optional.
	ConfigPath string

	ConnectTimeout     time.Duration
	LoginTimeout       time.Duration
	Liveness           time.Duration
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	BackoffJitter      float64
	BackoffStableAfter time.Duration

	// MaxStartupAttempts bounds connection attempts before the first
	// session streams. Zero means retry forever.
	MaxStartupAttempts int

	MaxLineLength int

	DedupHorizon    time.Duration
	DedupBucket     time.Duration
	DedupMaxEntries int

	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration

	// StorageRetries is how often a failed batch is retried. Zero makes a
	// storage failure stop the client. DefaultConfig sets 3.
	StorageRetries    int
	StorageRetryDelay time.Duration

	// GracePeriod bounds shutdown.
	GracePeriod time.Duration

	DecodeFailureThreshold int
	DecodeFailureWindow    time.Duration

	StatsInterval time.Duration
}

// DefaultConfig returns a Config with sensible default values.
// At minimum, set Callsign before calling New.
func DefaultConfig() Config {
	cfg := Config{
		StorageRetries:     app.DefaultStorageRetries,
		BackoffJitter:      app.DefaultBackoffJitter,
		MaxStartupAttempts: app.DefaultMaxStartupAttempts,
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero-valued fields with defaults. StorageRetries,
// BackoffJitter and MaxStartupAttempts are left alone because zero is
// meaningful for them.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Software == "" {
		c.Software = "aprsship"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.StoreDriver == "" {
		c.StoreDriver = DriverSQLite
	}
	if c.StoreDSN == "" && c.StoreDriver == DriverSQLite {
		c.StoreDSN = "aprs.sqlite"
	}
	setDuration(&c.ConnectTimeout, app.DefaultConnectTimeout)
	setDuration(&c.LoginTimeout, app.DefaultLoginTimeout)
	setDuration(&c.Liveness, app.DefaultLivenessWindow)
	setDuration(&c.BackoffMin, app.DefaultBackoffMin)
	setDuration(&c.BackoffMax, app.DefaultBackoffMax)
	setDuration(&c.BackoffStableAfter, app.DefaultBackoffStableAfter)
	setDuration(&c.DedupHorizon, dedup.DefaultHorizon)
	setDuration(&c.DedupBucket, dedup.DefaultBucket)
	setDuration(&c.FlushInterval, batch.DefaultFlushInterval)
	setDuration(&c.StorageRetryDelay, app.DefaultStorageRetryDelay)
	setDuration(&c.GracePeriod, app.DefaultGracePeriod)
	setDuration(&c.DecodeFailureWindow, app.DefaultDecodeFailureWindow)
	setDuration(&c.StatsInterval, app.DefaultStatsInterval)
	setInt(&c.MaxLineLength, framing.DefaultMaxLineLength)
	setInt(&c.DedupMaxEntries, dedup.DefaultMaxEntries)
	setInt(&c.QueueSize, app.DefaultQueueSize)
	setInt(&c.BatchSize, batch.DefaultMaxFrames)
	setInt(&c.DecodeFailureThreshold, app.DefaultDecodeFailureThreshold)
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func setInt(n *int, def int) {
	if *n == 0 {
		*n = def
	}
}

// Validate checks the configuration. Errors match ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Callsign == "" {
		return &domain.ConfigError{Field: "Callsign", Reason: "is required"}
	}
	host, port, err := net.SplitHostPort(c.Addr)
	if err != nil || host == "" {
		return &domain.ConfigError{Field: "Addr", Reason: fmt.Sprintf("%q is not host:port", c.Addr)}
	}
	if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		return &domain.ConfigError{Field: "Addr", Reason: fmt.Sprintf("port %q is outside 1..65535", port)}
	}
	if c.Passcode != "" {
		if _, err := strconv.Atoi(c.Passcode); err != nil {
			return &domain.ConfigError{Field: "Passcode", Reason: "must be numeric"}
		}
	}
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return &domain.ConfigError{Field: "StoreDriver", Reason: fmt.Sprintf("unknown driver %q", c.StoreDriver)}
	}
	if c.BackoffMax < c.BackoffMin {
		return &domain.ConfigError{Field: "BackoffMax", Reason: "must not be less than BackoffMin"}
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= 1 {
		return &domain.ConfigError{Field: "BackoffJitter", Reason: "must be in [0,1)"}
	}
	if c.StorageRetries < 0 {
		return &domain.ConfigError{Field: "StorageRetries", Reason: "must not be negative"}
	}
	if c.MaxStartupAttempts < 0 {
		return &domain.ConfigError{Field: "MaxStartupAttempts", Reason: "must not be negative"}
	}
	for field, d := range map[string]time.Duration{
		"ConnectTimeout":      c.ConnectTimeout,
		"LoginTimeout":        c.LoginTimeout,
		"Liveness":            c.Liveness,
		"DedupHorizon":        c.DedupHorizon,
		"DedupBucket":         c.DedupBucket,
		"FlushInterval":       c.FlushInterval,
		"GracePeriod":         c.GracePeriod,
		"DecodeFailureWindow": c.DecodeFailureWindow,
		"StatsInterval":       c.StatsInterval,
	} {
		if d < 0 {
			return &domain.ConfigError{Field: field, Reason: "must not be negative"}
		}
	}
	return nil
}

// appConfig maps the public configuration onto the worker configuration.
func (c Config) appConfig() app.Config {
	return app.Config{
		Connection: app.ConnectionConfig{
			Addr:           c.Addr,
			Callsign:       c.Callsign,
			Passcode:       c.Passcode,
			Filter:         c.Filter,
			Software:       c.Software,
			Version:        c.Version,
			ConnectTimeout: c.ConnectTimeout,
			LoginTimeout:   c.LoginTimeout,
			Liveness:       c.Liveness,
			Backoff: app.BackoffPolicy{
				Min:         c.BackoffMin,
				Max:         c.BackoffMax,
				Jitter:      c.BackoffJitter,
				StableAfter: c.BackoffStableAfter,
			},
			MaxStartupAttempts: c.MaxStartupAttempts,
			MaxLineLength:      c.MaxLineLength,
		},
		Sink: app.SinkConfig{
			BatchSize:     c.BatchSize,
			FlushInterval: c.FlushInterval,
			QueueSize:     c.QueueSize,
			Retries:       c.StorageRetries,
			RetryDelay:    c.StorageRetryDelay,
			GracePeriod:   c.GracePeriod,
		},
		Dedup: dedup.Config{
			Horizon:    c.DedupHorizon,
			Bucket:     c.DedupBucket,
			MaxEntries: c.DedupMaxEntries,
		},
		DecodeFailureThreshold: c.DecodeFailureThreshold,
		DecodeFailureWindow:    c.DecodeFailureWindow,
		StatsInterval:          c.StatsInterval,
	}
}
