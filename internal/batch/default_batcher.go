package batch

import (
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

// Default batching parameters.
const (
	DefaultMaxFrames     = 200
	DefaultFlushInterval = 2 * time.Second
)

// DefaultBatcher manages the batching of frames for storage.
type DefaultBatcher struct {
	batch         *domain.Batch
	maxFrames     int
	flushInterval time.Duration
}

// NewDefaultBatcher creates a new batcher.
// Zero arguments select the defaults.
func NewDefaultBatcher(maxFrames int, flushInterval time.Duration) *DefaultBatcher {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &DefaultBatcher{
		batch:         domain.NewBatch(),
		maxFrames:     maxFrames,
		flushInterval: flushInterval,
	}
}

// Add adds a frame and reports whether the size trigger fired.
func (b *DefaultBatcher) Add(frame domain.Frame, now time.Time) bool {
	b.batch.Add(frame, now)
	return b.batch.Size() >= b.maxFrames
}

// Due returns true if the oldest buffered frame has waited long enough.
func (b *DefaultBatcher) Due(now time.Time) bool {
	if b.batch.Empty() {
		return false
	}
	return now.Sub(b.batch.OpenedAt) >= b.flushInterval
}

// Deadline returns the max-latency deadline of the open batch.
func (b *DefaultBatcher) Deadline() (time.Time, bool) {
	if b.batch.Empty() {
		return time.Time{}, false
	}
	return b.batch.OpenedAt.Add(b.flushInterval), true
}

// Take returns the buffered frames and starts a new batch.
func (b *DefaultBatcher) Take() []domain.Frame {
	return b.batch.Take()
}

// HasPending returns true if there are frames waiting to be written.
func (b *DefaultBatcher) HasPending() bool {
	return !b.batch.Empty()
}

// Size returns the number of buffered frames.
func (b *DefaultBatcher) Size() int {
	return b.batch.Size()
}

var _ Batcher = (*DefaultBatcher)(nil)
