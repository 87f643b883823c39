package aprsship

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/aprsship/pkg/log"
)

// Plugin extends a Client with optional behavior. Plugins are initialized
// by Start in registration order and shut down by Stop in reverse order.
type Plugin interface {
	// Name returns a short identifier used in logs.
	Name() string

	// Initialize starts the plugin. Long-running work must stop when ctx
	// is canceled or Shutdown is called.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}

// PluginConfig is what a plugin gets to work with.
type PluginConfig struct {
	// Addr and Callsign identify the session.
	Addr     string
	Callsign string

	// Filter is the filter in effect at start.
	Filter string

	// ConfigPath is the TOML file the client was configured from, if any.
	ConfigPath string

	// StateDir is where status.json lives, if configured.
	StateDir string

	// SetFilter changes the server-side filter on the running client.
	SetFilter func(filter string) error

	// Pruner deletes old frames. Nil when the store cannot prune.
	Pruner Pruner

	// Registerer and Gatherer expose the metrics registry. Nil when
	// metrics are disabled.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Logger log.Logger
}
