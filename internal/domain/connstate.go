package domain

import "fmt"

// ConnState is the state of the APRS-IS session.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnAuthenticating
	ConnStreaming
	ConnClosing
)

// String returns a human-readable representation of the state.
func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "Disconnected"
	case ConnConnecting:
		return "Connecting"
	case ConnAuthenticating:
		return "Authenticating"
	case ConnStreaming:
		return "Streaming"
	case ConnClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// connEdges lists the legal transitions. Closing is reachable from every
// state and has no outgoing edge.
var connEdges = map[ConnState][]ConnState{
	ConnDisconnected:   {ConnConnecting},
	ConnConnecting:     {ConnAuthenticating, ConnDisconnected},
	ConnAuthenticating: {ConnStreaming, ConnDisconnected},
	ConnStreaming:      {ConnDisconnected},
}

// CanTransition reports whether s -> next is a legal edge.
func (s ConnState) CanTransition(next ConnState) bool {
	if s == ConnClosing {
		return false
	}
	if next == ConnClosing {
		return true
	}
	for _, to := range connEdges[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Transition returns the state after moving from s to next.
// On an illegal edge it returns s unchanged and an error wrapping
// ErrInvalidTransition.
func (s ConnState) Transition(next ConnState) (ConnState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}
