// Package aprsship ingests a filtered APRS-IS feed into a relational store.
//
// Example usage:
//
//	cfg := aprsship.DefaultConfig()
//	cfg.Callsign = "N0CALL"
//	cfg.Passcode = aprsship.Passcode(cfg.Callsign)
//	cfg.Filter = "r/33.25/-96.5/50"
//	if err := aprsship.Run(ctx, cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// For lifecycle control, events and plugins use pkg/aprsship directly.
package aprsship

import (
	"context"

	"github.com/bft-labs/aprsship/internal/adapters/aprs"
	lib "github.com/bft-labs/aprsship/pkg/aprsship"
)

// Config holds the configuration for an ingestion client.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = lib.Config

// Frame is a decoded APRS packet.
type Frame = lib.Frame

// DefaultConfig returns a Config with sensible default values.
// At minimum, set Callsign before calling Run.
func DefaultConfig() Config {
	return lib.DefaultConfig()
}

// Passcode returns the APRS-IS passcode for callsign. The SSID is ignored.
func Passcode(callsign string) string {
	return aprs.Passcode(callsign)
}

// Run ingests until ctx is canceled or the client fails. Cancellation
// flushes buffered frames within cfg.GracePeriod and returns nil.
func Run(ctx context.Context, cfg Config, opts ...lib.Option) error {
	c, err := lib.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := c.Start(context.Background()); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-c.Done():
		return c.Err()
	}
	return c.Stop()
}
