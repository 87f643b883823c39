// Package dedup drops APRS-IS retransmissions seen within a recent horizon.
package dedup

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bft-labs/aprsship/internal/domain"
)

// Default window parameters.
const (
	DefaultHorizon    = 30 * time.Second
	DefaultBucket     = 10 * time.Minute
	DefaultMaxEntries = 100000
)

// Config holds the window parameters.
type Config struct {
	// Horizon is how long a fingerprint suppresses repeats.
	Horizon time.Duration

	// Bucket is the coarse time granularity mixed into the fingerprint.
	Bucket time.Duration

	// MaxEntries caps the number of remembered fingerprints.
	// The oldest entries go first when the cap is reached.
	MaxEntries int
}

type entry struct {
	fp     domain.Fingerprint
	seenAt time.Time
}

// Window remembers recently accepted fingerprints.
// Entries are kept in first-seen order so eviction pops from the front.
// A Window is not safe for concurrent use; the pipeline owns it.
type Window struct {
	cfg   Config
	seen  map[domain.Fingerprint]time.Time
	queue []entry
	head  int
}

// New creates an empty window. Zero config fields take the defaults.
func New(cfg Config) *Window {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.Bucket <= 0 {
		cfg.Bucket = DefaultBucket
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &Window{
		cfg:  cfg,
		seen: make(map[domain.Fingerprint]time.Time),
	}
}

// Fingerprint derives the dedup key of a frame from its source, its
// normalized payload and the time bucket of its arrival.
func Fingerprint(f domain.Frame, bucket time.Duration) domain.Fingerprint {
	return fingerprintAt(f, f.ReceivedAt.Truncate(bucket))
}

func fingerprintAt(f domain.Frame, bucketStart time.Time) domain.Fingerprint {
	b := bucketStart.Unix()
	buf := make([]byte, 0, len(f.Source)+len(f.Payload)+24)
	buf = append(buf, f.Source...)
	buf = append(buf, 0)
	buf = append(buf, f.NormalizedPayload()...)
	buf = append(buf, 0)
	buf = strconv.AppendInt(buf, b, 10)
	sum := blake3.Sum256(buf)
	return domain.Fingerprint(hex.EncodeToString(sum[:16]))
}

// Check evicts expired entries, then reports whether the frame's
// fingerprint was seen within the horizon. New fingerprints are recorded.
// The frame's ReceivedAt is the clock; a duplicate does not extend the
// original entry's lifetime. When the horizon reaches back into earlier
// buckets, their fingerprints are looked up too, so a repeat straddling a
// bucket edge is still caught. Only the current bucket's key is recorded.
func (w *Window) Check(f domain.Frame) (domain.Fingerprint, bool) {
	now := f.ReceivedAt
	w.evict(now)

	current := now.Truncate(w.cfg.Bucket)
	fp := fingerprintAt(f, current)
	if w.seenWithin(fp, now) {
		return fp, true
	}
	for b := now.Add(-w.cfg.Horizon).Truncate(w.cfg.Bucket); b.Before(current); b = b.Add(w.cfg.Bucket) {
		if w.seenWithin(fingerprintAt(f, b), now) {
			return fp, true
		}
	}

	for len(w.seen) >= w.cfg.MaxEntries && w.head < len(w.queue) {
		w.pop()
	}
	w.seen[fp] = now
	w.queue = append(w.queue, entry{fp: fp, seenAt: now})
	return fp, false
}

func (w *Window) seenWithin(fp domain.Fingerprint, now time.Time) bool {
	seenAt, ok := w.seen[fp]
	return ok && now.Sub(seenAt) < w.cfg.Horizon
}

// Len returns the number of remembered fingerprints.
func (w *Window) Len() int {
	return len(w.seen)
}

func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.cfg.Horizon)
	for w.head < len(w.queue) && !w.queue[w.head].seenAt.After(cutoff) {
		w.pop()
	}
}

// pop removes the oldest queued entry. The map entry is only removed if it
// still points at that occurrence.
func (w *Window) pop() {
	if w.head >= len(w.queue) {
		return
	}
	e := w.queue[w.head]
	w.queue[w.head] = entry{}
	w.head++
	if seenAt, ok := w.seen[e.fp]; ok && seenAt.Equal(e.seenAt) {
		delete(w.seen, e.fp)
	}
	if w.head > len(w.queue)/2 && w.head > 64 {
		w.queue = append(w.queue[:0:0], w.queue[w.head:]...)
		w.head = 0
	}
}
