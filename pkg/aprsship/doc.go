// Package aprsship provides an embeddable APRS-IS ingestion client.
//
// A Client keeps a filtered APRS-IS session open, decodes every TNC2 line
// into a [Frame], drops retransmissions seen within a short horizon, and
// writes the rest to a relational store in batches. It can be used as a
// standalone CLI application or embedded as a library in other Go programs.
//
// # Basic Usage
//
//	cfg := aprsship.DefaultConfig()
//	cfg.Callsign = "N0CALL"
//	cfg.Filter = "r/33.25/-96.5/50"
//
//	client, err := aprsship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run until shutdown signal ...
//
//	if err := client.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Storage
//
// Without [WithStore], Start opens the store named by Config.StoreDriver:
// "sqlite" (a file path in StoreDSN) or "postgres" (a connection string).
// Batches are written atomically; a failed batch is retried
// Config.StorageRetries times and then dropped and reported.
//
// # Event Handling
//
// Implement [EventHandler] (embedding [BaseEventHandler] for the callbacks
// you do not need) and pass it via [WithEventHandler]. Events are called
// synchronously from worker goroutines and should return quickly.
//
// # Lifecycle States
//
// A Client is in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping] or [StateCrashed]. The session itself has
// its own state, see [Client.ConnectionState].
//
// # Plugins
//
// Optional behavior lives in plugins registered with [WithPlugin]:
//
//	import "github.com/bft-labs/aprsship/plugins/retention"
//	import "github.com/bft-labs/aprsship/plugins/metricsserver"
//
//	client, err := aprsship.New(cfg,
//	    aprsship.WithRegisterer(prometheus.NewRegistry()),
//	    retention.WithRetention(retention.Config{MaxAge: 30 * 24 * time.Hour}),
//	    metricsserver.WithMetricsServer(metricsserver.Config{Addr: ":9100"}),
//	)
package aprsship
