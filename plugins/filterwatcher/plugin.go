// Package filterwatcher keeps the server-side filter in sync with the
// config file. When the file's filter key changes, the new filter is sent
// to the running session without reconnecting.
package filterwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/aprsship/internal/cliconfig"
	"github.com/bft-labs/aprsship/pkg/aprsship"
	"github.com/bft-labs/aprsship/pkg/log"
)

// Plugin watches the config file's directory. Editors often replace the
// file instead of writing it, so the directory is watched rather than the
// file itself.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration

	path      string
	current   string
	setFilter func(string) error
	logger    log.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	debounce  *time.Timer
}

// Config holds configuration options for the filter watcher plugin.
type Config struct {
	// DebounceDelay is how long to wait after the last file event before
	// re-reading the file.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 100 * time.Millisecond}
}

// New creates a new filter watcher plugin.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{debounceDelay: cfg.DebounceDelay}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "filterwatcher"
}

// Initialize starts watching cfg.ConfigPath. Without a config path or a
// SetFilter hook the plugin stays idle.
func (p *Plugin) Initialize(ctx context.Context, cfg aprsship.PluginConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	p.mu.Lock()
	p.path = cfg.ConfigPath
	p.current = cfg.Filter
	p.setFilter = cfg.SetFilter
	p.logger = logger
	p.mu.Unlock()

	if cfg.ConfigPath == "" || cfg.SetFilter == nil {
		logger.Warn("filter watcher disabled: no config file")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(cfg.ConfigPath)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	logger.Info("filter watcher started", log.String("path", cfg.ConfigPath))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher and waits for a pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("filter watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) scheduleReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload()
	})
}

// reload reads the file and applies its filter if it differs from the
// one in effect. An empty or missing filter key leaves the session alone.
func (p *Plugin) reload() {
	fc, err := cliconfig.LoadFileConfig(p.path)
	if err != nil {
		p.logger.Warn("filter watcher: cannot read config", log.String("path", p.path), log.Err(err))
		return
	}

	p.mu.Lock()
	if fc.Filter == "" || fc.Filter == p.current {
		p.mu.Unlock()
		return
	}
	previous := p.current
	p.current = fc.Filter
	setFilter := p.setFilter
	p.mu.Unlock()

	if err := setFilter(fc.Filter); err != nil {
		p.logger.Error("filter watcher: applying filter failed", log.String("filter", fc.Filter), log.Err(err))
		return
	}
	p.logger.Info("filter updated from config file",
		log.String("from", previous),
		log.String("to", fc.Filter))
}

// Filter returns the filter the plugin last applied.
func (p *Plugin) Filter() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
