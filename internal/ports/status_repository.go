package ports

import (
	"context"

	"github.com/bft-labs/aprsship/internal/domain"
)

// StatusRepository handles persistence of the operator status snapshot.
// Implementations persist the snapshot atomically.
type StatusRepository interface {
	// Load retrieves the last saved status.
	// Returns an empty status and nil error if none exists.
	// Returns an error only for actual read failures.
	Load(ctx context.Context) (domain.Status, error)

	// Save persists the current status atomically.
	// The implementation should use atomic writes (e.g., write to temp file, then rename)
	// to prevent a half-written file on crash.
	Save(ctx context.Context, status domain.Status) error
}
