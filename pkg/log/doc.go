// Package log provides the logging abstraction used by every aprsship component.
//
// Components depend only on the Logger interface. The zerolog adapter is the
// default backend for the CLI, and the no-op logger is the library default
// so embedding applications get no output unless they ask for it.
//
// # Usage
//
//	logger := log.NewZerologAdapter()
//	logger.Info("connected", log.String("addr", "rotate.aprs2.net:14580"))
//
// Wrap an existing zerolog logger:
//
//	logger := log.NewZerologAdapterWithLogger(zl)
//
// Discard everything (tests, silent embedding):
//
//	logger := log.NewNoopLogger()
package log
