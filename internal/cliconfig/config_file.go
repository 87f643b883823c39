package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
// Pointers mark fields where zero is a valid setting.
type FileConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Callsign string `toml:"callsign"`
	Passcode string `toml:"passcode"`
	Filter   string `toml:"filter"`
	Software string `toml:"software"`

	StoreDriver string `toml:"db_driver"`
	StoreDSN    string `toml:"db"`

	DedupHorizon    string `toml:"dedup_horizon"`
	DedupBucket     string `toml:"dedup_bucket"`
	DedupMaxEntries int    `toml:"dedup_max_entries"`

	ConnectTimeout     string   `toml:"connect_timeout"`
	LoginTimeout       string   `toml:"login_timeout"`
	Liveness           string   `toml:"liveness"`
	BackoffMin         string   `toml:"backoff_min"`
	BackoffMax         string   `toml:"backoff_max"`
	BackoffJitter      *float64 `toml:"backoff_jitter"`
	BackoffStableAfter string   `toml:"backoff_stable_after"`
	MaxStartupAttempts *int     `toml:"max_startup_attempts"`
	MaxLineLength      int      `toml:"max_line_length"`

	QueueSize         int    `toml:"queue_size"`
	BatchSize         int    `toml:"batch_size"`
	FlushInterval     string `toml:"flush_interval"`
	StorageRetries    *int   `toml:"storage_retries"`
	StorageRetryDelay string `toml:"storage_retry_delay"`
	GracePeriod       string `toml:"grace_period"`

	DecodeFailureThreshold int    `toml:"decode_failure_threshold"`
	DecodeFailureWindow    string `toml:"decode_failure_window"`

	StatsInterval string `toml:"stats_interval"`
	StateDir      string `toml:"state_dir"`
	MetricsAddr   string `toml:"metrics_addr"`
	Retention     string `toml:"retention"`
	WatchConfig   *bool  `toml:"watch_config"`
	LogLevel      string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.aprsship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".aprsship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", fc.Host, &cfg.Host)
	s.setString("callsign", fc.Callsign, &cfg.Callsign)
	s.setString("passcode", fc.Passcode, &cfg.Passcode)
	s.setString("filter", fc.Filter, &cfg.Filter)
	s.setString("software", fc.Software, &cfg.Software)
	s.setString("db-driver", fc.StoreDriver, &cfg.StoreDriver)
	s.setString("db", fc.StoreDSN, &cfg.StoreDSN)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"dedup-horizon", fc.DedupHorizon, &cfg.DedupHorizon},
		{"dedup-bucket", fc.DedupBucket, &cfg.DedupBucket},
		{"connect-timeout", fc.ConnectTimeout, &cfg.ConnectTimeout},
		{"login-timeout", fc.LoginTimeout, &cfg.LoginTimeout},
		{"liveness", fc.Liveness, &cfg.Liveness},
		{"backoff-min", fc.BackoffMin, &cfg.BackoffMin},
		{"backoff-max", fc.BackoffMax, &cfg.BackoffMax},
		{"backoff-stable-after", fc.BackoffStableAfter, &cfg.BackoffStableAfter},
		{"flush-interval", fc.FlushInterval, &cfg.FlushInterval},
		{"storage-retry-delay", fc.StorageRetryDelay, &cfg.StorageRetryDelay},
		{"grace-period", fc.GracePeriod, &cfg.GracePeriod},
		{"decode-failure-window", fc.DecodeFailureWindow, &cfg.DecodeFailureWindow},
		{"stats-interval", fc.StatsInterval, &cfg.StatsInterval},
		{"retention", fc.Retention, &cfg.Retention},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("port", fc.Port, &cfg.Port)
	s.setInt("dedup-max-entries", fc.DedupMaxEntries, &cfg.DedupMaxEntries)
	s.setInt("max-line-length", fc.MaxLineLength, &cfg.MaxLineLength)
	s.setInt("queue-size", fc.QueueSize, &cfg.QueueSize)
	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("decode-failure-threshold", fc.DecodeFailureThreshold, &cfg.DecodeFailureThreshold)
	s.setIntPtr("max-startup-attempts", fc.MaxStartupAttempts, &cfg.MaxStartupAttempts)
	s.setIntPtr("storage-retries", fc.StorageRetries, &cfg.StorageRetries)

	s.setFloatPtr("backoff-jitter", fc.BackoffJitter, &cfg.BackoffJitter)
	s.setBool("watch-config", fc.WatchConfig, &cfg.WatchConfig)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
