package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent error conditions in the aprsship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("aprsship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("aprsship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown exceeds the grace period.
	ErrShutdownTimeout = errors.New("aprsship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("aprsship: invalid configuration")

	// ErrInvalidTransition is returned for a connection state edge that does not exist.
	ErrInvalidTransition = errors.New("aprsship: invalid connection state transition")

	// ErrLivenessTimeout means no line arrived within the liveness window.
	ErrLivenessTimeout = errors.New("aprsship: liveness timeout")

	// ErrLoginTimeout means the server did not respond to the login line in time.
	ErrLoginTimeout = errors.New("aprsship: login timeout")

	// ErrStartupExhausted is returned when the first session could not be
	// established within the configured number of attempts.
	ErrStartupExhausted = errors.New("aprsship: startup connection attempts exhausted")

	// ErrSinkClosed is returned when submitting to a sink that has stopped.
	ErrSinkClosed = errors.New("aprsship: sink closed")
)

// TransportError is a connect, read or write failure on the APRS-IS socket.
// Recovered by reconnecting with backoff.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolTimeoutError means the server went quiet for longer than allowed
// in the given phase ("login" or "stream").
type ProtocolTimeoutError struct {
	Phase string
	After time.Duration
}

func (e *ProtocolTimeoutError) Error() string {
	return fmt.Sprintf("no data during %s for %s", e.Phase, e.After)
}

// Is maps the phase onto the matching sentinel.
func (e *ProtocolTimeoutError) Is(target error) bool {
	switch target {
	case ErrLoginTimeout:
		return e.Phase == "login"
	case ErrLivenessTimeout:
		return e.Phase == "stream"
	}
	return false
}

// DecodeReason classifies why a line could not be decoded.
type DecodeReason string

const (
	MalformedHeader    DecodeReason = "MalformedHeader"
	UnsupportedPayload DecodeReason = "UnsupportedPayload"
	EncodingError      DecodeReason = "EncodingError"
)

// DecodeError carries the offending line and the reason it was rejected.
// Recovered by dropping the line.
type DecodeError struct {
	Reason DecodeReason
	Line   string
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("decode: %s", e.Reason)
	}
	return fmt.Sprintf("decode: %s: %s", e.Reason, e.Detail)
}

// StorageError reports a batch that could not be written after all attempts.
type StorageError struct {
	Attempts int
	Frames   int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: batch of %d frames failed after %d attempts: %v", e.Frames, e.Attempts, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigError reports an invalid startup parameter. Always fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Is makes every ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
