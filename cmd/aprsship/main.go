package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/aprsship/internal/adapters/tcp"
	"github.com/bft-labs/aprsship/internal/cliconfig"
	"github.com/bft-labs/aprsship/pkg/aprsship"
	"github.com/bft-labs/aprsship/pkg/log"
	"github.com/bft-labs/aprsship/plugins/filterwatcher"
	"github.com/bft-labs/aprsship/plugins/metricsserver"
	"github.com/bft-labs/aprsship/plugins/retention"
)

const helpDescription = `
Ingest a filtered APRS-IS feed into SQLite or PostgreSQL.

Highlights:
  - Keeps one authenticated session open and reconnects with backoff.
  - Decodes TNC2 lines and drops retransmissions seen within a short horizon.
  - Writes frames in atomic batches; nothing is duplicated on retry.
  - Configure via file, env (APRSSHIP_*), or flags. The filter reloads live.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  aprsship --callsign N0CALL --filter r/33.25/-96.5/50
  aprsship --callsign N0CALL --db-driver postgres --db postgres://aprs@localhost/aprs
  aprsship --config $HOME/.aprsship/config.toml --metrics-addr :9100
  aprsship passcode N0CALL
  aprsship status --state-dir /var/lib/aprsship
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		zl := cliconfig.Logger("error")
		zl.Error().Err(err).Msg("aprsship")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	cfg.Version = getVersion()
	var (
		cfgPath string
		quiet   bool
	)

	root := &cobra.Command{
		Use:           "aprsship",
		Short:         "Ingest a filtered APRS-IS feed into a relational store",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, err := loadConfig(cmd, &cfg, cfgPath)
			if err != nil {
				return err
			}
			if quiet {
				cfg.LogLevel = zerolog.LevelWarnValue
			}
			return run(cmd.Context(), cfg, cfgFile)
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.aprsship/config.toml)")
	f.BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")

	f.StringVar(&cfg.Host, "host", cfg.Host, "APRS-IS server host")
	f.IntVar(&cfg.Port, "port", cfg.Port, "APRS-IS server port (14580 for filtered feeds)")
	f.StringVar(&cfg.Callsign, "callsign", cfg.Callsign, "login callsign (required)")
	f.StringVar(&cfg.Passcode, "passcode", cfg.Passcode, "login passcode (computed from callsign when empty, -1 for receive-only)")
	f.StringVar(&cfg.Filter, "filter", cfg.Filter, "server-side filter, e.g. r/33.25/-96.5/50")
	f.StringVar(&cfg.Software, "software", cfg.Software, "software name sent at login")

	f.StringVar(&cfg.StoreDriver, "db-driver", cfg.StoreDriver, "frame store: sqlite or postgres")
	f.StringVar(&cfg.StoreDSN, "db", cfg.StoreDSN, "SQLite file path or PostgreSQL connection string")

	f.DurationVar(&cfg.DedupHorizon, "dedup-horizon", cfg.DedupHorizon, "drop repeats of a frame seen within this window")
	f.DurationVar(&cfg.DedupBucket, "dedup-bucket", cfg.DedupBucket, "time bucket folded into the frame fingerprint")
	f.IntVar(&cfg.DedupMaxEntries, "dedup-max-entries", cfg.DedupMaxEntries, "maximum fingerprints kept in memory")

	f.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "TCP connect timeout")
	f.DurationVar(&cfg.LoginTimeout, "login-timeout", cfg.LoginTimeout, "time allowed for the server to acknowledge login")
	f.DurationVar(&cfg.Liveness, "liveness", cfg.Liveness, "reconnect when no line arrives for this long")
	f.DurationVar(&cfg.BackoffMin, "backoff-min", cfg.BackoffMin, "first reconnect delay")
	f.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "maximum reconnect delay")
	f.Float64Var(&cfg.BackoffJitter, "backoff-jitter", cfg.BackoffJitter, "reconnect delay jitter fraction [0,1)")
	f.DurationVar(&cfg.BackoffStableAfter, "backoff-stable-after", cfg.BackoffStableAfter, "reset backoff after streaming this long")
	f.IntVar(&cfg.MaxStartupAttempts, "max-startup-attempts", cfg.MaxStartupAttempts, "give up if the first session fails this many times (0 = never)")
	f.IntVar(&cfg.MaxLineLength, "max-line-length", cfg.MaxLineLength, "discard lines longer than this many bytes")

	f.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "lines buffered between reader and decoder")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "frames per store transaction")
	f.DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "maximum time a frame waits before being written")
	f.IntVar(&cfg.StorageRetries, "storage-retries", cfg.StorageRetries, "retries for a failed batch (0 = stop on failure)")
	f.DurationVar(&cfg.StorageRetryDelay, "storage-retry-delay", cfg.StorageRetryDelay, "initial delay between batch retries")
	f.DurationVar(&cfg.GracePeriod, "grace-period", cfg.GracePeriod, "time allowed to flush on shutdown")

	f.IntVar(&cfg.DecodeFailureThreshold, "decode-failure-threshold", cfg.DecodeFailureThreshold, "warn when this many lines fail to decode within the window")
	f.DurationVar(&cfg.DecodeFailureWindow, "decode-failure-window", cfg.DecodeFailureWindow, "decode failure counting window")

	f.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "how often counters are logged and status.json is written")
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for status.json (empty = none)")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (empty = disabled)")
	f.DurationVar(&cfg.Retention, "retention", cfg.Retention, "delete frames older than this (0 = keep forever)")
	f.BoolVar(&cfg.WatchConfig, "watch-config", cfg.WatchConfig, "apply filter changes from the config file without restarting")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	root.AddCommand(newPasscodeCmd(), newStatusCmd(), newRecentCmd())
	return root
}

// loadConfig layers file, environment and flags onto cfg and validates the
// result. It returns the config file path when one was read.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) (string, error) {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return "", err
		}
	} else {
		cfgFile = ""
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return cfgFile, nil
}

// libConfig converts the CLI configuration for the library.
func libConfig(cfg cliconfig.Config, cfgFile string) aprsship.Config {
	return aprsship.Config{
		Addr:                   cfg.Addr(),
		Callsign:               cfg.Callsign,
		Passcode:               cfg.Passcode,
		Filter:                 cfg.Filter,
		Software:               cfg.Software,
		Version:                cfg.Version,
		StoreDriver:            cfg.StoreDriver,
		StoreDSN:               cfg.StoreDSN,
		StateDir:               cfg.StateDir,
		ConfigPath:             cfgFile,
		ConnectTimeout:         cfg.ConnectTimeout,
		LoginTimeout:           cfg.LoginTimeout,
		Liveness:               cfg.Liveness,
		BackoffMin:             cfg.BackoffMin,
		BackoffMax:             cfg.BackoffMax,
		BackoffJitter:          cfg.BackoffJitter,
		BackoffStableAfter:     cfg.BackoffStableAfter,
		MaxStartupAttempts:     cfg.MaxStartupAttempts,
		MaxLineLength:          cfg.MaxLineLength,
		DedupHorizon:           cfg.DedupHorizon,
		DedupBucket:            cfg.DedupBucket,
		DedupMaxEntries:        cfg.DedupMaxEntries,
		QueueSize:              cfg.QueueSize,
		BatchSize:              cfg.BatchSize,
		FlushInterval:          cfg.FlushInterval,
		StorageRetries:         cfg.StorageRetries,
		StorageRetryDelay:      cfg.StorageRetryDelay,
		GracePeriod:            cfg.GracePeriod,
		DecodeFailureThreshold: cfg.DecodeFailureThreshold,
		DecodeFailureWindow:    cfg.DecodeFailureWindow,
		StatsInterval:          cfg.StatsInterval,
	}
}

// pluginOptions enables the optional plugins the configuration asks for.
func pluginOptions(cfg cliconfig.Config, cfgFile string) []aprsship.Option {
	var opts []aprsship.Option
	if cfg.WatchConfig && cfgFile != "" {
		opts = append(opts, filterwatcher.WithDefaultFilterWatcher())
	}
	if cfg.Retention > 0 {
		opts = append(opts, retention.WithRetention(retention.Config{
			MaxAge:         cfg.Retention,
			CheckInterval:  time.Hour,
			RunImmediately: true,
		}))
	}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts,
			aprsship.WithRegisterer(reg),
			metricsserver.WithMetricsServer(metricsserver.Config{Addr: cfg.MetricsAddr}),
		)
	}
	return opts
}

func run(ctx context.Context, cfg cliconfig.Config, cfgFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	zl := cliconfig.Logger(cfg.LogLevel)

	logCfg := cfg
	if logCfg.Passcode != "" && logCfg.Passcode != "-1" {
		logCfg.Passcode = "*****"
	}
	if logCfg.StoreDriver == cliconfig.DriverPostgres {
		logCfg.StoreDSN = "*****"
	}
	zl.Info().Interface("config", logCfg).Str("config_file", cfgFile).Msg("configuration")

	preflightCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	addrs, err := tcp.Preflight(preflightCtx, nil, cfg.Host)
	cancel()
	if err != nil {
		return err
	}
	zl.Debug().Strs("addrs", addrs).Str("host", cfg.Host).Msg("server resolved")

	opts := append([]aprsship.Option{
		aprsship.WithLogger(log.NewZerologAdapterWithLogger(zl)),
	}, pluginOptions(cfg, cfgFile)...)

	c, err := aprsship.New(libConfig(cfg, cfgFile), opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(context.Background()); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-sigCtx.Done():
		zl.Info().Msg("received signal, stopping...")
	case <-c.Done():
		return c.Err()
	}

	if err := c.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	st := c.Stats()
	zl.Info().
		Uint64("persisted", st.Counters.Persisted).
		Uint64("duplicates", st.Counters.Duplicates).
		Uint64("reconnects", st.Counters.Reconnects).
		Msg("stopped")
	return nil
}
