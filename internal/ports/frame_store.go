package ports

import (
	"context"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

// FrameStore durably records decoded frames.
// Implementations handle schema, connection pooling and transactions.
type FrameStore interface {
	// InsertBatch writes all frames in one transaction, in slice order.
	// Either every frame is committed or none is, so the caller may retry
	// a failed batch without producing duplicate rows.
	InsertBatch(ctx context.Context, frames []domain.Frame) error

	// Close releases connections held by the store.
	Close() error
}

// Pruner is implemented by stores that can delete old frames.
type Pruner interface {
	// PruneBefore deletes frames received before cutoff and returns the
	// number of rows removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
