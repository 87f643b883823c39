package app

import (
	"sync/atomic"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

// Stats holds the running pipeline counters.
// Each counter has a single writer; reads may happen from any goroutine.
type Stats struct {
	linesReceived   atomic.Uint64
	comments        atomic.Uint64
	overflows       atomic.Uint64
	decoded         atomic.Uint64
	decodeFailures  atomic.Uint64
	duplicates      atomic.Uint64
	persisted       atomic.Uint64
	storageDropped  atomic.Uint64
	reconnects      atomic.Uint64
	stalls          atomic.Uint64
	lastLineAt      atomic.Int64
	lastConnectedAt atomic.Int64
}

// Counters returns a consistent-enough snapshot of all counters.
func (s *Stats) Counters() domain.Counters {
	return domain.Counters{
		LinesReceived:  s.linesReceived.Load(),
		Comments:       s.comments.Load(),
		Overflows:      s.overflows.Load(),
		Decoded:        s.decoded.Load(),
		DecodeFailures: s.decodeFailures.Load(),
		Duplicates:     s.duplicates.Load(),
		Persisted:      s.persisted.Load(),
		StorageDropped: s.storageDropped.Load(),
		Reconnects:     s.reconnects.Load(),
		Stalls:         s.stalls.Load(),
	}
}

// LastLineAt is the arrival time of the most recent line, comments included.
func (s *Stats) LastLineAt() time.Time {
	return unixNano(s.lastLineAt.Load())
}

// LastConnectedAt is when a session last reached Streaming.
func (s *Stats) LastConnectedAt() time.Time {
	return unixNano(s.lastConnectedAt.Load())
}

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
