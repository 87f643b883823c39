package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/aprsship/internal/dedup"
	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/internal/ports"
	"github.com/bft-labs/aprsship/pkg/log"
)

// DefaultStatsInterval is how often counters are logged and the status
// snapshot is written.
const DefaultStatsInterval = 60 * time.Second

// shutdownSlack lets the sink report a batch dropped at the end of the
// grace period before the coordinator gives up on it.
const shutdownSlack = 250 * time.Millisecond

// Config holds everything the ingestion workers need.
type Config struct {
	Connection ConnectionConfig
	Sink       SinkConfig
	Dedup      dedup.Config

	DecodeFailureThreshold int
	DecodeFailureWindow    time.Duration

	StatsInterval time.Duration
}

// Deps are the adapters the client drives.
type Deps struct {
	Dialer  ports.Dialer
	Decoder ports.Decoder
	Store   ports.FrameStore

	// StatusRepo is optional; without it no snapshot is written.
	StatusRepo ports.StatusRepository

	// Registerer is optional; without it no metrics are exported.
	Registerer prometheus.Registerer

	Logger log.Logger
	Events PipelineEvents
}

// Client wires ConnectionManager, Pipeline and Sink into one run.
// A Client runs once; build a new one to restart.
type Client struct {
	cfg        Config
	logger     log.Logger
	statusRepo ports.StatusRepository

	stats    *Stats
	metrics  *Metrics
	conn     *ConnectionManager
	pipeline *Pipeline
	sink     *Sink
}

// NewClient builds the workers. It fails if a required dependency is
// missing or metrics cannot be registered.
func NewClient(cfg Config, deps Deps) (*Client, error) {
	if deps.Dialer == nil || deps.Decoder == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: dialer, decoder and store are required", domain.ErrInvalidConfig)
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNoopLogger()
	}
	if deps.Events == nil {
		deps.Events = NoopEvents{}
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	cfg.Sink = cfg.Sink.withDefaults()

	c := &Client{
		cfg:        cfg,
		logger:     deps.Logger,
		statusRepo: deps.StatusRepo,
		stats:      &Stats{},
	}
	c.conn = NewConnectionManager(cfg.Connection, deps.Dialer, c.stats, deps.Logger, deps.Events)
	c.cfg.Connection = c.conn.cfg

	metrics, err := newMetrics(deps.Registerer, c.stats, c.conn.State)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	c.metrics = metrics
	c.sink = NewSink(cfg.Sink, deps.Store, c.stats, metrics, deps.Logger, deps.Events)
	health := NewFailureMonitor(cfg.DecodeFailureThreshold, cfg.DecodeFailureWindow, deps.Logger, deps.Events)
	c.pipeline = NewPipeline(deps.Decoder, dedup.New(cfg.Dedup), c.sink, health, c.stats, deps.Logger)
	return c, nil
}

// Start launches the workers under a new ShutdownCoordinator derived from
// parent. Call Shutdown and WaitWithTimeout on the result to stop.
func (c *Client) Start(parent context.Context) *ShutdownCoordinator {
	coord := NewShutdownCoordinator(parent, c.cfg.Sink.GracePeriod+shutdownSlack, c.logger)
	lines := make(chan domain.RawLine, c.cfg.Sink.QueueSize)

	coord.Go("connection", func(ctx context.Context) error { return c.conn.Run(ctx, lines) })
	coord.Go("pipeline", func(ctx context.Context) error { return c.pipeline.Run(lines) })
	coord.Go("sink", c.sink.Run)
	coord.Go("reporter", c.report)
	coord.Seal()

	c.logger.Info("ingestion started",
		log.String("addr", c.cfg.Connection.Addr),
		log.String("callsign", c.cfg.Connection.Callsign),
	)
	return coord
}

// Run starts the client and blocks until ctx is canceled or a worker
// fails. Shutdown is bounded by the grace period.
func (c *Client) Run(ctx context.Context) error {
	coord := c.Start(ctx)
	select {
	case <-ctx.Done():
		coord.Shutdown("context canceled")
	case <-coord.Done():
	}
	err := coord.WaitWithTimeout()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close unregisters the client's metrics. Call it after the run has ended.
func (c *Client) Close() {
	c.metrics.unregister()
}

// ConnectionState returns the session state.
func (c *Client) ConnectionState() domain.ConnState {
	return c.conn.State()
}

// SetFilter changes the server-side filter.
func (c *Client) SetFilter(filter string) error {
	return c.conn.SetFilter(filter)
}

// Counters returns the pipeline totals.
func (c *Client) Counters() domain.Counters {
	return c.stats.Counters()
}

// Status builds the operator snapshot.
func (c *Client) Status() domain.Status {
	return domain.Status{
		Server:          c.cfg.Connection.Addr,
		Callsign:        c.cfg.Connection.Callsign,
		Connection:      c.conn.State().String(),
		LastConnectedAt: c.stats.LastConnectedAt(),
		LastLineAt:      c.stats.LastLineAt(),
		Counters:        c.stats.Counters(),
		UpdatedAt:       time.Now(),
	}
}

// report logs counters and writes the snapshot every StatsInterval, and
// once more after the sink has finished.
func (c *Client) report(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.publish(ctx)
		case <-ctx.Done():
			select {
			case <-c.sink.done:
			case <-time.After(c.cfg.Sink.GracePeriod):
			}
			c.publish(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (c *Client) publish(ctx context.Context) {
	st := c.Status()
	n := st.Counters
	c.logger.Info("stats",
		log.Uint64("received", n.LinesReceived),
		log.Uint64("decoded", n.Decoded),
		log.Uint64("decode_failures", n.DecodeFailures),
		log.Uint64("duplicates", n.Duplicates),
		log.Uint64("persisted", n.Persisted),
		log.Uint64("dropped", n.StorageDropped),
		log.Uint64("reconnects", n.Reconnects),
		log.String("state", st.Connection),
	)
	if c.statusRepo == nil {
		return
	}
	if err := c.statusRepo.Save(ctx, st); err != nil {
		c.logger.Warn("failed to save status", log.Err(err))
	}
}
