package aprsship

import (
	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/internal/ports"
)

// Re-exported domain types. They are aliases, so values move freely
// between this package and custom adapters.
type (
	// Frame is a decoded APRS packet.
	Frame = domain.Frame

	// RawLine is one protocol line as read from the server.
	RawLine = domain.RawLine

	// ConnState is the APRS-IS session state.
	ConnState = domain.ConnState

	// Stats is a point-in-time snapshot of counters and session health.
	Stats = domain.Status

	// Counters are the running pipeline totals.
	Counters = domain.Counters

	// FrameStore persists batches of frames atomically.
	FrameStore = ports.FrameStore

	// Pruner deletes frames older than a cutoff. Stores may implement it.
	Pruner = ports.Pruner

	// Decoder turns a line into a Frame.
	Decoder = ports.Decoder

	// Dialer opens the TCP connection. *net.Dialer satisfies it.
	Dialer = ports.Dialer

	// StatusRepository persists the status snapshot.
	StatusRepository = ports.StatusRepository
)

// Connection states.
const (
	ConnDisconnected   = domain.ConnDisconnected
	ConnConnecting     = domain.ConnConnecting
	ConnAuthenticating = domain.ConnAuthenticating
	ConnStreaming      = domain.ConnStreaming
	ConnClosing        = domain.ConnClosing
)

// Errors returned by the client. Check them with errors.Is.
var (
	ErrAlreadyRunning   = domain.ErrAlreadyRunning
	ErrNotRunning       = domain.ErrNotRunning
	ErrShutdownTimeout  = domain.ErrShutdownTimeout
	ErrInvalidConfig    = domain.ErrInvalidConfig
	ErrStartupExhausted = domain.ErrStartupExhausted
)

// State represents the lifecycle state of a Client.
type State int

const (
	// StateStopped means the client is not running.
	StateStopped State = iota
	// StateStarting means Start is opening the store and plugins.
	StateStarting
	// StateRunning means the workers are ingesting.
	StateRunning
	// StateStopping means Stop is draining the pipeline.
	StateStopping
	// StateCrashed means the last run ended with an error.
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}
