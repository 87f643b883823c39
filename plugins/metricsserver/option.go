package metricsserver

import "github.com/bft-labs/aprsship/pkg/aprsship"

// WithMetricsServer returns an aprsship Option that serves the client's
// metrics registry over HTTP in the Prometheus text format.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	c, err := aprsship.New(cfg,
//	    aprsship.WithRegisterer(reg),
//	    metricsserver.WithMetricsServer(metricsserver.Config{Addr: ":9100"}),
//	)
func WithMetricsServer(cfg Config) aprsship.Option {
	return aprsship.WithPlugin(New(cfg))
}
