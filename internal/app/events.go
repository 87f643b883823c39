package app

import (
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

// PipelineEvents receives notifications from the ingestion workers.
// Callbacks run on the worker goroutine and must not block.
type PipelineEvents interface {
	OnConnectionStateChange(previous, current domain.ConnState, reason string)
	OnBatchPersisted(frames, attempts int, duration time.Duration)
	OnBatchDropped(frames int, err error)
	OnHealthDegraded(failures int, window time.Duration)
}

// NoopEvents ignores every notification.
type NoopEvents struct{}

func (NoopEvents) OnConnectionStateChange(previous, current domain.ConnState, reason string) {}
func (NoopEvents) OnBatchPersisted(frames, attempts int, duration time.Duration)             {}
func (NoopEvents) OnBatchDropped(frames int, err error)                                      {}
func (NoopEvents) OnHealthDegraded(failures int, window time.Duration)                       {}
