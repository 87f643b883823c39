package cliconfig

import (
	"os"
	"time"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "APRSSHIP_"

func env(name string) string { return os.Getenv(EnvPrefix + name) }

// ApplyEnvConfig applies configuration from environment variables (APRSSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", env("HOST"), &cfg.Host)
	s.setString("callsign", env("CALLSIGN"), &cfg.Callsign)
	s.setString("passcode", env("PASSCODE"), &cfg.Passcode)
	s.setString("filter", env("FILTER"), &cfg.Filter)
	s.setString("software", env("SOFTWARE"), &cfg.Software)
	s.setString("db-driver", env("DB_DRIVER"), &cfg.StoreDriver)
	s.setString("db", env("DB"), &cfg.StoreDSN)
	s.setString("state-dir", env("STATE_DIR"), &cfg.StateDir)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	durations := []struct {
		flag string
		name string
		dst  *time.Duration
	}{
		{"dedup-horizon", "DEDUP_HORIZON", &cfg.DedupHorizon},
		{"dedup-bucket", "DEDUP_BUCKET", &cfg.DedupBucket},
		{"connect-timeout", "CONNECT_TIMEOUT", &cfg.ConnectTimeout},
		{"login-timeout", "LOGIN_TIMEOUT", &cfg.LoginTimeout},
		{"liveness", "LIVENESS", &cfg.Liveness},
		{"backoff-min", "BACKOFF_MIN", &cfg.BackoffMin},
		{"backoff-max", "BACKOFF_MAX", &cfg.BackoffMax},
		{"backoff-stable-after", "BACKOFF_STABLE_AFTER", &cfg.BackoffStableAfter},
		{"flush-interval", "FLUSH_INTERVAL", &cfg.FlushInterval},
		{"storage-retry-delay", "STORAGE_RETRY_DELAY", &cfg.StorageRetryDelay},
		{"grace-period", "GRACE_PERIOD", &cfg.GracePeriod},
		{"decode-failure-window", "DECODE_FAILURE_WINDOW", &cfg.DecodeFailureWindow},
		{"stats-interval", "STATS_INTERVAL", &cfg.StatsInterval},
		{"retention", "RETENTION", &cfg.Retention},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.name), d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		flag      string
		name      string
		dst       *int
		allowZero bool
	}{
		{"port", "PORT", &cfg.Port, false},
		{"dedup-max-entries", "DEDUP_MAX_ENTRIES", &cfg.DedupMaxEntries, false},
		{"max-line-length", "MAX_LINE_LENGTH", &cfg.MaxLineLength, false},
		{"queue-size", "QUEUE_SIZE", &cfg.QueueSize, false},
		{"batch-size", "BATCH_SIZE", &cfg.BatchSize, false},
		{"decode-failure-threshold", "DECODE_FAILURE_THRESHOLD", &cfg.DecodeFailureThreshold, false},
		{"max-startup-attempts", "MAX_STARTUP_ATTEMPTS", &cfg.MaxStartupAttempts, true},
		{"storage-retries", "STORAGE_RETRIES", &cfg.StorageRetries, true},
	}
	for _, n := range ints {
		if err := s.setIntFromString(n.flag, env(n.name), n.dst, n.allowZero); err != nil {
			return err
		}
	}

	if err := s.setFloatFromString("backoff-jitter", env("BACKOFF_JITTER"), &cfg.BackoffJitter); err != nil {
		return err
	}
	s.setBoolFromString("watch-config", env("WATCH_CONFIG"), &cfg.WatchConfig)

	return nil
}
