package ports

import "github.com/bft-labs/aprsship/internal/domain"

// Decoder converts a single APRS-IS line into a structured frame.
// Implementations must be pure: no shared state, safe for concurrent use.
type Decoder interface {
	// Decode parses line.Text. On failure it returns a *domain.DecodeError
	// carrying the offending text and a reason code. The returned frame's
	// ReceivedAt is line.ReceivedAt.
	Decode(line domain.RawLine) (domain.Frame, error)
}
