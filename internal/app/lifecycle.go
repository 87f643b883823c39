package app

import (
	"sync"

	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/pkg/log"
)

// State is the run state of an embedded client, as opposed to the
// APRS-IS session state tracked by the connection manager.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

var stateNames = [...]string{"Stopped", "Starting", "Running", "Stopping", "Crashed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// idle reports whether no run is active, so Start may be called.
func (s State) idle() bool {
	return s == StateStopped || s == StateCrashed
}

// runEdges lists the legal moves. Starting may go straight to Stopping
// when Stop arrives while plugins are still initializing.
var runEdges = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle guards the run state of a client. Cancellation and worker
// tracking live in ShutdownCoordinator.
type Lifecycle struct {
	mu      sync.RWMutex
	state   State
	logger  log.Logger
	emitter EventEmitter
}

// NewLifecycle returns a lifecycle in StateStopped.
func NewLifecycle(logger log.Logger, emitter EventEmitter) *Lifecycle {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Lifecycle{logger: logger, emitter: emitter}
}

// State returns the current run state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to next and reports the change. An illegal move
// leaves the state unchanged and returns ErrNotRunning when no run is
// active, ErrAlreadyRunning otherwise.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !legalMove(prev, next) {
		l.mu.Unlock()
		if prev.idle() {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.mu.Unlock()

	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Info("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}

func legalMove(from, to State) bool {
	for _, s := range runEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanStart reports whether no run is active.
func (l *Lifecycle) CanStart() bool {
	return l.State().idle()
}

// CanStop reports whether a run is starting or running.
func (l *Lifecycle) CanStop() bool {
	s := l.State()
	return s == StateRunning || s == StateStarting
}
