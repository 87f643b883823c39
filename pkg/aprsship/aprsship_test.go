package aprsship_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/aprsship/internal/adapters/sqlite"
	"github.com/bft-labs/aprsship/pkg/aprsship"
)

const (
	testPosition = "N0CALL-9>APRS,TCPIP*,qAC,T2TEST:!4903.50N/07201.75W-first"
	testStatus   = "W1AW>APDR16,WIDE1-1:>second report"
)

// =============================================================================
// Test Utilities
// =============================================================================

type memStore struct {
	mu     sync.Mutex
	frames []aprsship.Frame
	closed bool
}

func (s *memStore) InsertBatch(ctx context.Context, frames []aprsship.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *memStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// aprsServer accepts logins and replays a fixed set of lines to every
// session. Lines written by the client after login are recorded.
type aprsServer struct {
	ln    net.Listener
	mu    sync.Mutex
	lines []string
}

func newAPRSServer(t *testing.T, replay ...string) *aprsServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &aprsServer{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn, replay)
		}
	}()
	return s
}

func (s *aprsServer) serve(conn net.Conn, replay []string) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	login, err := r.ReadString('\n')
	if err != nil {
		return
	}
	s.record(login)
	io.WriteString(conn, "# aprsc 2.1.14\r\n")
	io.WriteString(conn, "# logresp N0CALL verified, server T2TEST\r\n")
	for _, line := range replay {
		io.WriteString(conn, line+"\r\n")
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		s.record(line)
	}
}

func (s *aprsServer) record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *aprsServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *aprsServer) addr() string { return s.ln.Addr().String() }

func testConfig(addr string) aprsship.Config {
	cfg := aprsship.DefaultConfig()
	cfg.Addr = addr
	cfg.Callsign = "N0CALL"
	cfg.Passcode = "13023"
	cfg.Filter = "m/50"
	cfg.FlushInterval = 20 * time.Millisecond
	cfg.GracePeriod = time.Second
	cfg.BackoffMin = 10 * time.Millisecond
	cfg.BackoffMax = 50 * time.Millisecond
	cfg.StatsInterval = time.Hour
	return cfg
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type recordingHandler struct {
	aprsship.BaseEventHandler
	mu     sync.Mutex
	states []string
	conns  []aprsship.ConnState
	frames int
}

func (h *recordingHandler) OnStateChange(e aprsship.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e.Current.String())
}

func (h *recordingHandler) OnConnectionStateChange(e aprsship.ConnectionStateEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns = append(h.conns, e.Current)
}

func (h *recordingHandler) OnBatchPersisted(e aprsship.BatchPersistedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames += e.FrameCount
}

func (h *recordingHandler) stateLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.states...)
}

// trackingPlugin records initialization and shutdown order.
type trackingPlugin struct {
	name      string
	mu        *sync.Mutex
	order     *[]string
	initError error
	cfg       aprsship.PluginConfig
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(ctx context.Context, cfg aprsship.PluginConfig) error {
	if p.initError != nil {
		return p.initError
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	*p.order = append(*p.order, "init:"+p.name)
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.order = append(*p.order, "shutdown:"+p.name)
	return nil
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*aprsship.Config)
	}{
		{"missing callsign", func(c *aprsship.Config) { c.Callsign = "" }},
		{"addr without port", func(c *aprsship.Config) { c.Addr = "rotate.aprs2.net" }},
		{"port out of range", func(c *aprsship.Config) { c.Addr = "rotate.aprs2.net:70000" }},
		{"non-numeric passcode", func(c *aprsship.Config) { c.Passcode = "abc" }},
		{"unknown driver", func(c *aprsship.Config) { c.StoreDriver = "mysql" }},
		{"backoff max below min", func(c *aprsship.Config) { c.BackoffMin, c.BackoffMax = time.Minute, time.Second }},
		{"jitter out of range", func(c *aprsship.Config) { c.BackoffJitter = 1 }},
		{"negative retries", func(c *aprsship.Config) { c.StorageRetries = -1 }},
		{"negative liveness", func(c *aprsship.Config) { c.Liveness = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("127.0.0.1:14580")
			tt.modify(&cfg)
			if _, err := aprsship.New(cfg); !errors.Is(err, aprsship.ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := aprsship.DefaultConfig()
	if cfg.Addr != aprsship.DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, aprsship.DefaultAddr)
	}
	if cfg.StorageRetries != 3 {
		t.Errorf("StorageRetries = %d, want 3", cfg.StorageRetries)
	}
	if cfg.MaxStartupAttempts != 10 {
		t.Errorf("MaxStartupAttempts = %d, want 10", cfg.MaxStartupAttempts)
	}
	if cfg.StoreDriver != aprsship.DriverSQLite || cfg.StoreDSN == "" {
		t.Errorf("store = %s %q, want sqlite with a path", cfg.StoreDriver, cfg.StoreDSN)
	}
}

func TestClient_StartStop(t *testing.T) {
	srv := newAPRSServer(t, testPosition, testPosition, "GARBAGE", testStatus)
	store := &memStore{}
	handler := &recordingHandler{}

	c, err := aprsship.New(testConfig(srv.addr()),
		aprsship.WithStore(store),
		aprsship.WithEventHandler(handler),
	)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status() != aprsship.StateStopped {
		t.Fatalf("Status() = %v before Start, want Stopped", c.Status())
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.Status() != aprsship.StateRunning {
		t.Errorf("Status() = %v after Start, want Running", c.Status())
	}

	waitUntil(t, "two frames stored", func() bool { return store.count() == 2 })
	if got := c.ConnectionState(); got != aprsship.ConnStreaming {
		t.Errorf("ConnectionState() = %v, want Streaming", got)
	}

	stats := c.Stats()
	if stats.Counters.Duplicates != 1 || stats.Counters.DecodeFailures != 1 {
		t.Errorf("counters = %+v, want 1 duplicate and 1 decode failure", stats.Counters)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if c.Status() != aprsship.StateStopped {
		t.Errorf("Status() = %v after Stop, want Stopped", c.Status())
	}
	if store.isClosed() {
		t.Error("injected store was closed by the client")
	}

	want := []string{"Starting", "Running", "Stopping", "Stopped"}
	if got := handler.stateLog(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("state events = %v, want %v", got, want)
	}

	logins := srv.received()
	if len(logins) == 0 || !strings.HasPrefix(logins[0], "user N0CALL pass 13023 vers aprsship ") || !strings.HasSuffix(logins[0], " filter m/50\r\n") {
		t.Errorf("login line = %q", logins)
	}
}

func TestClient_StartTwice(t *testing.T) {
	srv := newAPRSServer(t)
	c, err := aprsship.New(testConfig(srv.addr()), aprsship.WithStore(&memStore{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if err := c.Start(context.Background()); !errors.Is(err, aprsship.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestClient_StopWhenStopped(t *testing.T) {
	c, err := aprsship.New(testConfig("127.0.0.1:14580"), aprsship.WithStore(&memStore{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); !errors.Is(err, aprsship.ErrNotRunning) {
		t.Errorf("Stop() error = %v, want ErrNotRunning", err)
	}
}

func TestClient_Restart(t *testing.T) {
	srv := newAPRSServer(t, testPosition)
	reg := prometheus.NewRegistry()
	c, err := aprsship.New(testConfig(srv.addr()),
		aprsship.WithStore(&memStore{}),
		aprsship.WithRegisterer(reg),
	)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := c.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d error = %v", i+1, err)
		}
		waitUntil(t, "streaming", func() bool { return c.ConnectionState() == aprsship.ConnStreaming })
		if err := c.Stop(); err != nil {
			t.Fatalf("Stop() #%d error = %v", i+1, err)
		}
	}
}

func TestClient_ContextCancelStops(t *testing.T) {
	srv := newAPRSServer(t)
	c, err := aprsship.New(testConfig(srv.addr()), aprsship.WithStore(&memStore{}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop after context cancel")
	}
	if c.Status() != aprsship.StateStopped {
		t.Errorf("Status() = %v, want Stopped", c.Status())
	}
	if c.Err() != nil {
		t.Errorf("Err() = %v, want nil", c.Err())
	}
}

func TestClient_StartupExhaustedCrashes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(addr)
	cfg.MaxStartupAttempts = 2
	c, err := aprsship.New(cfg, aprsship.WithStore(&memStore{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("client did not give up")
	}
	if !errors.Is(c.Err(), aprsship.ErrStartupExhausted) {
		t.Errorf("Err() = %v, want ErrStartupExhausted", c.Err())
	}
	if c.Status() != aprsship.StateCrashed {
		t.Errorf("Status() = %v, want Crashed", c.Status())
	}
}

func TestClient_SetFilter(t *testing.T) {
	srv := newAPRSServer(t)
	c, err := aprsship.New(testConfig(srv.addr()), aprsship.WithStore(&memStore{}))
	if err != nil {
		t.Fatal(err)
	}

	// Before Start the filter is remembered for the first login.
	if err := c.SetFilter("r/33.25/-96.5/50"); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	waitUntil(t, "login", func() bool { return len(srv.received()) > 0 })
	if login := srv.received()[0]; !strings.HasSuffix(login, " filter r/33.25/-96.5/50\r\n") {
		t.Errorf("login line = %q, want the updated filter", login)
	}

	waitUntil(t, "streaming", func() bool { return c.ConnectionState() == aprsship.ConnStreaming })
	if err := c.SetFilter("b/N0CALL*"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "filter command", func() bool {
		for _, line := range srv.received() {
			if line == "#filter b/N0CALL*\r\n" {
				return true
			}
		}
		return false
	})
}

func TestClient_PluginOrder(t *testing.T) {
	srv := newAPRSServer(t)
	var (
		mu    sync.Mutex
		order []string
	)
	a := &trackingPlugin{name: "a", mu: &mu, order: &order}
	b := &trackingPlugin{name: "b", mu: &mu, order: &order}
	reg := prometheus.NewRegistry()

	c, err := aprsship.New(testConfig(srv.addr()),
		aprsship.WithStore(&memStore{}),
		aprsship.WithRegisterer(reg),
		aprsship.WithPlugin(a),
		aprsship.WithPlugin(b),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := "init:a,init:b,shutdown:b,shutdown:a"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("plugin order = %s, want %s", got, want)
	}
	if a.cfg.Callsign != "N0CALL" || a.cfg.Filter != "m/50" || a.cfg.SetFilter == nil {
		t.Errorf("plugin config = %+v", a.cfg)
	}
	if a.cfg.Gatherer == nil {
		t.Error("Gatherer should be set when the registerer is a registry")
	}
	if a.cfg.Pruner != nil {
		t.Error("Pruner should be nil for a store that cannot prune")
	}
}

func TestClient_PluginInitFailure(t *testing.T) {
	srv := newAPRSServer(t)
	var (
		mu    sync.Mutex
		order []string
	)
	boom := errors.New("boom")
	a := &trackingPlugin{name: "a", mu: &mu, order: &order}
	b := &trackingPlugin{name: "b", mu: &mu, order: &order, initError: boom}

	c, err := aprsship.New(testConfig(srv.addr()),
		aprsship.WithStore(&memStore{}),
		aprsship.WithPlugin(a),
		aprsship.WithPlugin(b),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want plugin error", err)
	}
	if c.Status() != aprsship.StateCrashed {
		t.Errorf("Status() = %v, want Crashed", c.Status())
	}

	mu.Lock()
	got := strings.Join(order, ",")
	mu.Unlock()
	if got != "init:a,shutdown:a" {
		t.Errorf("plugin order = %s, want init:a,shutdown:a", got)
	}
}

func TestClient_SQLiteStore(t *testing.T) {
	srv := newAPRSServer(t, testPosition, testStatus)
	path := filepath.Join(t.TempDir(), "aprs.sqlite")

	cfg := testConfig(srv.addr())
	cfg.StoreDriver = aprsship.DriverSQLite
	cfg.StoreDSN = path

	var (
		mu    sync.Mutex
		order []string
	)
	probe := &trackingPlugin{name: "probe", mu: &mu, order: &order}
	handler := &recordingHandler{}
	c, err := aprsship.New(cfg, aprsship.WithEventHandler(handler), aprsship.WithPlugin(probe))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "batch persisted", func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return handler.frames == 2
	})
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	hasPruner := probe.cfg.Pruner != nil
	mu.Unlock()
	if !hasPruner {
		t.Error("sqlite store should be offered to plugins as a Pruner")
	}

	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	n, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}
