package domain

import "time"

// Batch is an ordered group of frames written to storage together.
// Frames keep the order in which they were decoded.
type Batch struct {
	// Frames contains the frames in decode order
	Frames []Frame

	// OpenedAt is when the first frame entered the batch
	OpenedAt time.Time
}

// NewBatch creates a new empty batch.
func NewBatch() *Batch {
	return &Batch{
		Frames: make([]Frame, 0),
	}
}

// Add appends a frame to the batch.
func (b *Batch) Add(frame Frame, now time.Time) {
	if len(b.Frames) == 0 {
		b.OpenedAt = now
	}
	b.Frames = append(b.Frames, frame)
}

// Size returns the number of frames in the batch.
func (b *Batch) Size() int {
	return len(b.Frames)
}

// Empty returns true if the batch has no frames.
func (b *Batch) Empty() bool {
	return len(b.Frames) == 0
}

// Take returns the buffered frames and resets the batch.
// The returned slice is owned by the caller.
func (b *Batch) Take() []Frame {
	out := make([]Frame, len(b.Frames))
	copy(out, b.Frames)
	b.Reset()
	return out
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.Frames = b.Frames[:0]
	b.OpenedAt = time.Time{}
}

// LastFrame returns the last frame in the batch, or nil if empty.
func (b *Batch) LastFrame() *Frame {
	if len(b.Frames) == 0 {
		return nil
	}
	return &b.Frames[len(b.Frames)-1]
}
