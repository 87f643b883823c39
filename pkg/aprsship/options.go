package aprsship

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/aprsship/pkg/log"
)

// Option configures optional behavior of a Client.
type Option func(*options)

// options holds the optional configuration for a Client.
type options struct {
	logger       log.Logger
	eventHandler EventHandler
	plugins      []Plugin
	store        FrameStore
	decoder      Decoder
	dialer       Dialer
	registerer   prometheus.Registerer
	statusRepo   StatusRepository
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for client events.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the client starts.
// Plugins are initialized in registration order and shut down in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithStore injects the frame store. The caller keeps ownership: the client
// never closes an injected store. Without it, Start opens the store named
// by Config.StoreDriver and Config.StoreDSN and closes it on Stop.
func WithStore(store FrameStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithDecoder replaces the TNC2 text decoder.
func WithDecoder(decoder Decoder) Option {
	return func(o *options) {
		o.decoder = decoder
	}
}

// WithDialer replaces the TCP dialer, e.g. to route through a proxy.
func WithDialer(dialer Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// WithRegisterer exports metrics to reg. If reg is also a
// prometheus.Gatherer (as *prometheus.Registry is), plugins receive it too.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithStatusRepository sets where status snapshots are saved, overriding
// Config.StateDir.
func WithStatusRepository(repo StatusRepository) Option {
	return func(o *options) {
		o.statusRepo = repo
	}
}
