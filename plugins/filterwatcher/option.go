package filterwatcher

import "github.com/bft-labs/aprsship/pkg/aprsship"

// WithFilterWatcher returns an aprsship Option that re-reads the config
// file on change and applies a new filter to the running session.
//
// Usage:
//
//	c, err := aprsship.New(cfg,
//	    filterwatcher.WithFilterWatcher(filterwatcher.Config{
//	        DebounceDelay: 200 * time.Millisecond,
//	    }),
//	)
//
// The file is taken from aprsship.Config.ConfigPath.
func WithFilterWatcher(cfg Config) aprsship.Option {
	return aprsship.WithPlugin(New(cfg))
}

// WithDefaultFilterWatcher enables filter watching with default settings.
func WithDefaultFilterWatcher() aprsship.Option {
	return WithFilterWatcher(DefaultConfig())
}
