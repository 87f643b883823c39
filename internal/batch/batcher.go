// Package batch groups decoded frames into storage batches.
package batch

import (
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

// Batcher accumulates frames until a batch is ready to be written.
// It tracks the size limit and the max-latency deadline of the open batch.
type Batcher interface {
	// Add adds a frame to the current batch.
	// Returns true if the batch reached its size threshold.
	Add(frame domain.Frame, now time.Time) bool

	// Due returns true if the open batch has waited at least the flush interval.
	Due(now time.Time) bool

	// Deadline returns when the open batch must be flushed.
	// ok is false when the batch is empty.
	Deadline() (deadline time.Time, ok bool)

	// Take removes and returns the buffered frames in decode order.
	Take() []domain.Frame

	// HasPending returns true if there are frames waiting to be written.
	HasPending() bool
}
