// Package metricsserver exposes client metrics on /metrics and a liveness
// probe on /healthz.
package metricsserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/aprsship/pkg/aprsship"
	"github.com/bft-labs/aprsship/pkg/log"
)

// Plugin runs an HTTP server for the lifetime of a client run.
type Plugin struct {
	mu sync.Mutex

	addr              string
	readHeaderTimeout time.Duration

	server *http.Server
	ln     net.Listener
	logger log.Logger
	wg     sync.WaitGroup
}

// Config holds configuration options for the metrics server plugin.
type Config struct {
	// Addr is the listen address, e.g. ":9100" or "127.0.0.1:0".
	Addr string

	// ReadHeaderTimeout bounds slow clients.
	// Default: 5 seconds
	ReadHeaderTimeout time.Duration
}

// New creates a new metrics server plugin.
func New(cfg Config) *Plugin {
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	return &Plugin{addr: cfg.Addr, readHeaderTimeout: cfg.ReadHeaderTimeout}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "metricsserver"
}

// Initialize binds the listener and starts serving. Failing to bind is an
// error; a missing gatherer only disables the plugin.
func (p *Plugin) Initialize(ctx context.Context, cfg aprsship.PluginConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	p.logger = logger

	if p.addr == "" || cfg.Gatherer == nil {
		logger.Warn("metrics server disabled: no address or registry")
		return nil
	}

	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler(cfg.Gatherer, cfg.Registerer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: p.readHeaderTimeout}

	p.mu.Lock()
	p.server = server
	p.ln = ln
	p.mu.Unlock()

	logger.Info("metrics server listening", log.String("addr", ln.Addr().String()))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", log.Err(err))
		}
	}()
	return nil
}

// handler serves g. When reg is set the handler's own request metrics are
// registered there too.
func handler(g prometheus.Gatherer, reg prometheus.Registerer) http.Handler {
	opts := promhttp.HandlerOpts{}
	if reg != nil {
		opts.Registry = reg
	}
	return promhttp.HandlerFor(g, opts)
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	server := p.server
	p.server = nil
	p.mu.Unlock()

	if server == nil {
		return nil
	}
	err := server.Shutdown(ctx)
	p.wg.Wait()
	return err
}

// Addr returns the bound address, or "" when not serving.
func (p *Plugin) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return ""
	}
	return p.ln.Addr().String()
}
