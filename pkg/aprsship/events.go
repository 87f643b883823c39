package aprsship

import (
	"time"

	"github.com/bft-labs/aprsship/internal/app"
)

// EventHandler receives notifications about client operation.
// Callbacks run synchronously on worker goroutines and must return quickly.
type EventHandler interface {
	// OnStateChange is called when the lifecycle state changes.
	OnStateChange(event StateChangeEvent)

	// OnConnectionStateChange is called on every session state transition.
	OnConnectionStateChange(event ConnectionStateEvent)

	// OnBatchPersisted is called after a batch is committed.
	OnBatchPersisted(event BatchPersistedEvent)

	// OnBatchDropped is called when a batch is given up after retries.
	OnBatchDropped(event BatchDroppedEvent)

	// OnHealthDegraded is called when decode failures cross the threshold.
	OnHealthDegraded(event HealthDegradedEvent)
}

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// ConnectionStateEvent describes a session transition.
type ConnectionStateEvent struct {
	Previous ConnState
	Current  ConnState
	Reason   string
}

// BatchPersistedEvent describes a committed batch.
type BatchPersistedEvent struct {
	FrameCount int
	Attempts   int
	Duration   time.Duration
}

// BatchDroppedEvent describes a batch lost to storage failure.
type BatchDroppedEvent struct {
	FrameCount int
	Error      error
}

// HealthDegradedEvent reports a burst of decode failures.
type HealthDegradedEvent struct {
	Failures int
	Window   time.Duration
}

// BaseEventHandler provides no-op implementations of every callback.
// Embed it to implement only the events you care about.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)               {}
func (BaseEventHandler) OnConnectionStateChange(ConnectionStateEvent) {}
func (BaseEventHandler) OnBatchPersisted(BatchPersistedEvent)         {}
func (BaseEventHandler) OnBatchDropped(BatchDroppedEvent)             {}
func (BaseEventHandler) OnHealthDegraded(HealthDegradedEvent)         {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnConnectionStateChange(previous, current ConnState, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnConnectionStateChange(ConnectionStateEvent{Previous: previous, Current: current, Reason: reason})
}

func (e *eventEmitterWrapper) OnBatchPersisted(frames, attempts int, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnBatchPersisted(BatchPersistedEvent{FrameCount: frames, Attempts: attempts, Duration: duration})
}

func (e *eventEmitterWrapper) OnBatchDropped(frames int, err error) {
	if e.handler == nil {
		return
	}
	e.handler.OnBatchDropped(BatchDroppedEvent{FrameCount: frames, Error: err})
}

func (e *eventEmitterWrapper) OnHealthDegraded(failures int, window time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnHealthDegraded(HealthDegradedEvent{Failures: failures, Window: window})
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
