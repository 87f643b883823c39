// Package retention bounds the size of the frame store by periodically
// deleting frames older than a maximum age.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/aprsship/pkg/aprsship"
	"github.com/bft-labs/aprsship/pkg/log"
)

// Plugin implements age-based pruning.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	maxAge         time.Duration
	checkInterval  time.Duration
	runImmediately bool
	now            func() time.Time

	// Runtime state
	pruner aprsship.Pruner
	logger log.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	total  int64
}

// Config holds configuration options for the retention plugin.
type Config struct {
	// MaxAge is how long frames are kept. Zero disables pruning.
	MaxAge time.Duration

	// CheckInterval is how often to prune.
	// Default: 1 hour
	CheckInterval time.Duration

	// RunImmediately prunes once on startup.
	RunImmediately bool
}

// DefaultConfig keeps 30 days of frames and prunes hourly.
func DefaultConfig() Config {
	return Config{
		MaxAge:         30 * 24 * time.Hour,
		CheckInterval:  time.Hour,
		RunImmediately: true,
	}
}

// New creates a new retention plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	return &Plugin{
		maxAge:         cfg.MaxAge,
		checkInterval:  cfg.CheckInterval,
		runImmediately: cfg.RunImmediately,
		now:            time.Now,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "retention"
}

// Initialize starts the prune loop. The plugin stays idle when MaxAge is
// zero or the store cannot prune.
func (p *Plugin) Initialize(ctx context.Context, cfg aprsship.PluginConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	p.mu.Lock()
	p.pruner = cfg.Pruner
	p.logger = logger
	p.mu.Unlock()

	if p.maxAge <= 0 {
		logger.Warn("retention disabled: no maximum age configured")
		return nil
	}
	if cfg.Pruner == nil {
		logger.Warn("retention disabled: store does not support pruning")
		return nil
	}

	pruneCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	logger.Info("retention plugin initialized",
		log.Duration("max_age", p.maxAge),
		log.Duration("interval", p.checkInterval))

	p.wg.Add(1)
	go p.pruneLoop(pruneCtx)
	return nil
}

// Shutdown stops the prune loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) pruneLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.runImmediately {
		p.pruneOnce(ctx)
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

// pruneOnce deletes frames received before now - maxAge.
func (p *Plugin) pruneOnce(ctx context.Context) {
	p.mu.Lock()
	pruner := p.pruner
	cutoff := p.now().Add(-p.maxAge)
	p.mu.Unlock()

	removed, err := pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("retention: prune failed", log.Time("cutoff", cutoff), log.Err(err))
		}
		return
	}

	p.mu.Lock()
	p.total += removed
	p.mu.Unlock()

	if removed > 0 {
		p.logger.Info("retention: pruned old frames",
			log.Int64("removed", removed),
			log.Time("cutoff", cutoff))
	}
}

// Removed returns the number of frames deleted since Initialize.
func (p *Plugin) Removed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
