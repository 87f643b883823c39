package retention

import "github.com/bft-labs/aprsship/pkg/aprsship"

// WithRetention returns an aprsship Option that periodically deletes frames
// older than cfg.MaxAge from the store.
//
// Usage:
//
//	c, err := aprsship.New(cfg,
//	    retention.WithRetention(retention.Config{
//	        MaxAge:        30 * 24 * time.Hour,
//	        CheckInterval: time.Hour,
//	    }),
//	)
//
// The store must implement aprsship.Pruner; the built-in SQLite and
// PostgreSQL stores do.
func WithRetention(cfg Config) aprsship.Option {
	return aprsship.WithPlugin(New(cfg))
}
