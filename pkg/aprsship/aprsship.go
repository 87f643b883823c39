package aprsship

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/aprsship/internal/adapters/aprs"
	"github.com/bft-labs/aprsship/internal/adapters/fs"
	"github.com/bft-labs/aprsship/internal/adapters/postgres"
	"github.com/bft-labs/aprsship/internal/adapters/sqlite"
	"github.com/bft-labs/aprsship/internal/adapters/tcp"
	"github.com/bft-labs/aprsship/internal/app"
	"github.com/bft-labs/aprsship/pkg/log"
)

// Client is an APRS-IS ingestion client that can be embedded in other
// applications. Use New() to create an instance, then Start() to begin.
// A stopped or crashed Client can be started again.
type Client struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	emitter   *eventEmitterWrapper
	logger    log.Logger

	mu     sync.Mutex
	filter string
	run    *app.Client
	coord  *app.ShutdownCoordinator
	store  FrameStore
	owned  bool
	done   chan struct{}
	err    error
}

// New creates a new Client with the given configuration.
// The instance is created in StateStopped; call Start() to begin ingesting.
// Returns an error matching ErrInvalidConfig if the configuration is invalid.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	if o.decoder == nil {
		o.decoder = aprs.NewDecoder()
	}
	if o.dialer == nil {
		o.dialer = tcp.NewDialer()
	}
	if o.statusRepo == nil && cfg.StateDir != "" {
		o.statusRepo = fs.NewStatusFileRepository(cfg.StateDir)
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	done := make(chan struct{})
	close(done)

	return &Client{
		config:    cfg,
		opts:      o,
		lifecycle: app.NewLifecycle(o.logger, emitter),
		emitter:   emitter,
		logger:    o.logger,
		filter:    cfg.Filter,
		done:      done,
	}, nil
}

// Start connects and begins ingesting in the background.
// It returns once the store is open and plugins are initialized.
// Returns ErrAlreadyRunning if already running. The provided context bounds
// the lifetime of the run: canceling it stops the client like Stop.
func (c *Client) Start(ctx context.Context) error {
	if !c.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := c.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	c.mu.Lock()
	c.coord = nil
	err := c.openStore(ctx)
	store := c.store
	cfg := c.config
	cfg.Filter = c.filter
	c.mu.Unlock()
	if err != nil {
		return c.failStart(err, "open store")
	}

	run, err := app.NewClient(cfg.appConfig(), app.Deps{
		Dialer:     c.opts.dialer,
		Decoder:    c.opts.decoder,
		Store:      store,
		StatusRepo: c.opts.statusRepo,
		Registerer: c.opts.registerer,
		Logger:     c.logger,
		Events:     c.emitter,
	})
	if err != nil {
		return c.failStart(err, "build client")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.run = run
	c.mu.Unlock()

	pluginCfg := c.pluginConfig(store, cfg.Filter)
	var started []Plugin
	for _, p := range c.opts.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			c.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			c.shutdownPlugins(started)
			run.Close()
			return c.failStart(fmt.Errorf("plugin %s: %w", p.Name(), err), "plugin init failed")
		}
		started = append(started, p)
		c.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	done := make(chan struct{})
	coord := run.Start(runCtx)
	c.mu.Lock()
	c.err = nil
	c.done = done
	c.coord = coord
	c.mu.Unlock()

	if err := c.lifecycle.TransitionTo(app.StateRunning, "workers started"); err != nil {
		c.logger.Debug("not entering running state", log.Err(err))
	}
	go c.watch(coord, run, cancel, started, done)
	return nil
}

func (c *Client) failStart(err error, reason string) error {
	c.mu.Lock()
	c.closeStore()
	c.err = err
	c.mu.Unlock()
	_ = c.lifecycle.TransitionTo(app.StateCrashed, reason+": "+err.Error())
	return err
}

// watch tears the run down once every worker has returned, whether
// because of Stop, a canceled parent context or a fatal error.
func (c *Client) watch(coord *app.ShutdownCoordinator, run *app.Client, cancel context.CancelFunc, plugins []Plugin, done chan struct{}) {
	<-coord.Done()
	err := coord.Err()

	cancel()
	c.shutdownPlugins(plugins)
	run.Close()

	c.mu.Lock()
	c.closeStore()
	c.err = err
	c.mu.Unlock()

	switch {
	case err != nil:
		_ = c.lifecycle.TransitionTo(app.StateCrashed, err.Error())
	case c.lifecycle.State() == app.StateRunning:
		_ = c.lifecycle.TransitionTo(app.StateStopping, "context canceled")
		_ = c.lifecycle.TransitionTo(app.StateStopped, "context canceled")
	default:
		_ = c.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	close(done)
}

// Stop gracefully shuts down the client: the connection closes, queued
// lines drain, and the open batch is flushed within the grace period.
// Returns ErrNotRunning if not running and ErrShutdownTimeout if the
// workers did not finish in time.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.coord == nil || !c.lifecycle.CanStop() {
		c.mu.Unlock()
		return ErrNotRunning
	}
	if err := c.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		c.mu.Unlock()
		return err
	}
	coord, done := c.coord, c.done
	c.mu.Unlock()

	coord.Shutdown("Stop() called")
	if err := coord.WaitWithTimeout(); errors.Is(err, ErrShutdownTimeout) {
		_ = c.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
		return err
	}
	<-done
	return c.Err()
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (c *Client) Status() State {
	return convertState(c.lifecycle.State())
}

// ConnectionState returns the APRS-IS session state.
func (c *Client) ConnectionState() ConnState {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()
	if run == nil {
		return ConnDisconnected
	}
	return run.ConnectionState()
}

// Stats returns counters and session health for the current or last run.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()
	if run == nil {
		return Stats{Server: c.config.Addr, Callsign: c.config.Callsign, Connection: ConnDisconnected.String()}
	}
	return run.Status()
}

// SetFilter changes the server-side filter. While streaming it takes
// effect immediately; otherwise it is used at the next login.
func (c *Client) SetFilter(filter string) error {
	c.mu.Lock()
	c.filter = filter
	run := c.run
	c.mu.Unlock()

	if run == nil {
		return nil
	}
	return run.SetFilter(filter)
}

// Done is closed when the current run ends.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the error that ended the last run, or nil.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) pluginConfig(store FrameStore, filter string) PluginConfig {
	cfg := PluginConfig{
		Addr:       c.config.Addr,
		Callsign:   c.config.Callsign,
		Filter:     filter,
		ConfigPath: c.config.ConfigPath,
		StateDir:   c.config.StateDir,
		SetFilter:  c.SetFilter,
		Registerer: c.opts.registerer,
		Logger:     c.logger,
	}
	if p, ok := store.(Pruner); ok {
		cfg.Pruner = p
	}
	if g, ok := c.opts.registerer.(prometheus.Gatherer); ok {
		cfg.Gatherer = g
	}
	return cfg
}

// shutdownPlugins stops initialized plugins in reverse order.
func (c *Client) shutdownPlugins(plugins []Plugin) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.GracePeriod)
	defer cancel()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			c.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			c.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}
}

func (c *Client) openStore(ctx context.Context) error {
	if c.opts.store != nil {
		c.store, c.owned = c.opts.store, false
		return nil
	}
	var (
		store FrameStore
		err   error
	)
	switch c.config.StoreDriver {
	case DriverPostgres:
		store, err = postgres.Open(ctx, postgres.Config{DSN: c.config.StoreDSN, Logger: c.logger})
	default:
		store, err = sqlite.Open(ctx, sqlite.Config{Path: c.config.StoreDSN, Logger: c.logger})
	}
	if err != nil {
		return fmt.Errorf("open %s store: %w", c.config.StoreDriver, err)
	}
	c.store, c.owned = store, true
	return nil
}

func (c *Client) closeStore() {
	if c.store == nil || !c.owned {
		return
	}
	if err := c.store.Close(); err != nil {
		c.logger.Warn("failed to close store", log.Err(err))
	}
	c.owned = false
}
