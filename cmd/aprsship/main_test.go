package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/aprsship/internal/adapters/fs"
	"github.com/bft-labs/aprsship/internal/adapters/sqlite"
	"github.com/bft-labs/aprsship/internal/cliconfig"
	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/pkg/aprsship"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPasscodeCmd(t *testing.T) {
	out, err := execute(t, "passcode", "n0call-9")
	if err != nil {
		t.Fatalf("passcode error = %v", err)
	}
	if strings.TrimSpace(out) != "13023" {
		t.Errorf("passcode output = %q, want 13023", out)
	}

	if _, err := execute(t, "passcode"); err == nil {
		t.Error("passcode without a callsign should fail")
	}
}

func TestStatusCmd(t *testing.T) {
	dir := t.TempDir()
	updated := time.Now().Add(-5 * time.Second).UTC().Truncate(time.Second)
	err := fs.NewStatusFileRepository(dir).Save(context.Background(), domain.Status{
		Server:     "rotate.aprs2.net:14580",
		Callsign:   "N0CALL",
		Connection: "Streaming",
		Counters:   domain.Counters{LinesReceived: 42, Persisted: 40, Duplicates: 2},
		UpdatedAt:  updated,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "status", "--state-dir", dir)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{"N0CALL", "Streaming", "lines received:  42", "persisted:       40 (0 dropped)", "last line:       never"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCmd_Missing(t *testing.T) {
	if _, err := execute(t, "status", "--state-dir", t.TempDir()); err == nil {
		t.Error("status on an empty state dir should fail")
	}
	if _, err := execute(t, "status"); err == nil {
		t.Error("status without --state-dir should fail")
	}
}

func TestRecentCmd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aprs.sqlite")
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.Config{Path: dbPath})
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err = store.InsertBatch(ctx, []domain.Frame{
		{ID: "1", Source: "N0CALL-9", Destination: "APRS", Path: []string{"TCPIP*", "qAC", "T2TEST"}, Kind: domain.KindPosition, Payload: "!4903.50N/07201.75W-older", ReceivedAt: at, Fingerprint: "a"},
		{ID: "2", Source: "W1AW", Destination: "APDR16", Kind: domain.KindStatus, Payload: ">newest", ReceivedAt: at.Add(time.Minute), Fingerprint: "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	out, err := execute(t, "recent", "--db", dbPath, "-n", "1")
	if err != nil {
		t.Fatalf("recent error = %v", err)
	}
	if !strings.HasPrefix(out, "2 frames stored, newest 1:") {
		t.Errorf("header missing:\n%s", out)
	}
	if !strings.Contains(out, "W1AW>APDR16:>newest") || strings.Contains(out, "older") {
		t.Errorf("unexpected frames:\n%s", out)
	}

	out, err = execute(t, "recent", "--db", dbPath)
	if err != nil {
		t.Fatalf("recent error = %v", err)
	}
	if !strings.Contains(out, "N0CALL-9>APRS,TCPIP*,qAC,T2TEST:!4903.50N") {
		t.Errorf("path not printed:\n%s", out)
	}

	if _, err := execute(t, "recent", "--db", dbPath, "-n", "0"); err == nil {
		t.Error("recent with a zero limit should fail")
	}
}

func TestRootCmd_InvalidConfigFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := execute(t, "--callsign", "", "--port", "70000")
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `callsign = "n0call"
filter = "m/50"
batch_size = 50
storage_retries = 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APRSSHIP_BATCH_SIZE", "75")
	t.Setenv("APRSSHIP_FILTER", "r/33/-96/10")

	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--filter", "b/N0CALL*"}); err != nil {
		t.Fatal(err)
	}
	cfg := cliconfig.DefaultConfig()
	cfg.Filter = "b/N0CALL*"

	cfgFile, err := loadConfig(cmd, &cfg, path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfgFile != path {
		t.Errorf("config file = %q, want %q", cfgFile, path)
	}
	if cfg.Callsign != "N0CALL" {
		t.Errorf("Callsign = %q, want N0CALL", cfg.Callsign)
	}
	if cfg.Passcode != "13023" {
		t.Errorf("Passcode = %q, want derived 13023", cfg.Passcode)
	}
	if cfg.BatchSize != 75 {
		t.Errorf("BatchSize = %d, want env value 75", cfg.BatchSize)
	}
	if cfg.Filter != "b/N0CALL*" {
		t.Errorf("Filter = %q, want flag value", cfg.Filter)
	}
	if cfg.StorageRetries != 0 {
		t.Errorf("StorageRetries = %d, want file value 0", cfg.StorageRetries)
	}
}

func TestLoadConfig_MissingFileIgnored(t *testing.T) {
	cmd := newRootCmd()
	cfg := cliconfig.DefaultConfig()
	cfg.Callsign = "N0CALL"

	cfgFile, err := loadConfig(cmd, &cfg, filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfgFile != "" {
		t.Errorf("config file = %q, want empty for a missing file", cfgFile)
	}
}

func TestLibConfig_IsValid(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	cfg.Callsign = "N0CALL"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	lib := libConfig(cfg, "/etc/aprsship.toml")
	if lib.Addr != "rotate.aprs2.net:14580" {
		t.Errorf("Addr = %q", lib.Addr)
	}
	if lib.ConfigPath != "/etc/aprsship.toml" {
		t.Errorf("ConfigPath = %q", lib.ConfigPath)
	}
	if _, err := aprsship.New(lib); err != nil {
		t.Errorf("aprsship.New() error = %v", err)
	}
}

func TestPluginOptions(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	cfg.WatchConfig = false
	if opts := pluginOptions(cfg, ""); len(opts) != 0 {
		t.Errorf("got %d options with nothing enabled, want 0", len(opts))
	}

	cfg.WatchConfig = true
	if opts := pluginOptions(cfg, ""); len(opts) != 0 {
		t.Errorf("watcher enabled without a config file")
	}

	cfg.Retention = 24 * time.Hour
	cfg.MetricsAddr = "127.0.0.1:0"
	// filter watcher, retention, registerer and metrics server
	if opts := pluginOptions(cfg, "/etc/aprsship.toml"); len(opts) != 4 {
		t.Errorf("got %d options, want 4", len(opts))
	}
}
