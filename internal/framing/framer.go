// Package framing splits the APRS-IS byte stream into protocol lines.
package framing

import (
	"bytes"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/pkg/log"
)

// DefaultMaxLineLength is the longest line accepted, terminator excluded.
// APRS-IS servers never send lines anywhere near this long.
const DefaultMaxLineLength = 2048

// Framer accumulates byte chunks and emits complete lines.
// Lines end with "\n"; a preceding "\r" is stripped. A terminator split
// across two chunks is handled because partial input is buffered.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	maxLen     int
	buf        []byte
	discarding bool
	overflows  uint64
	logger     log.Logger
}

// NewFramer creates a framer. maxLen <= 0 selects DefaultMaxLineLength.
func NewFramer(maxLen int, logger log.Logger) *Framer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Framer{
		maxLen: maxLen,
		buf:    make([]byte, 0, 256),
		logger: logger,
	}
}

// Feed consumes one chunk and calls emit for every line it completes.
// at is used as the arrival time of lines terminated inside this chunk.
// Empty lines are skipped.
func (f *Framer) Feed(chunk []byte, at time.Time, emit func(domain.RawLine)) {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			f.buffer(chunk)
			return
		}
		f.buffer(chunk[:i])
		chunk = chunk[i+1:]

		if f.discarding {
			// Terminator of an overflowed line: resume with the next one.
			f.discarding = false
			f.buf = f.buf[:0]
			continue
		}

		line := bytes.TrimSuffix(f.buf, []byte{'\r'})
		f.buf = f.buf[:0]
		if len(line) == 0 {
			continue
		}
		if len(line) > f.maxLen {
			f.overflow(line)
			continue
		}
		text := string(line)
		emit(domain.RawLine{
			Text:       text,
			ReceivedAt: at,
			Comment:    text[0] == '#',
		})
	}
}

// buffer appends to the in-progress line, switching to discard mode once
// the line cannot fit. One extra byte is allowed for a trailing '\r'.
func (f *Framer) buffer(p []byte) {
	if f.discarding || len(p) == 0 {
		return
	}
	if len(f.buf)+len(p) > f.maxLen+1 {
		f.overflow(append(f.buf, p...))
		f.discarding = true
		f.buf = f.buf[:0]
		return
	}
	f.buf = append(f.buf, p...)
}

func (f *Framer) overflow(head []byte) {
	f.overflows++
	f.logger.Warn("line exceeds maximum length, discarding",
		log.Int("max", f.maxLen),
		log.Line(string(head)),
	)
}

// Pending returns the number of buffered bytes of the unterminated line.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Overflows returns how many lines were discarded for exceeding the limit.
func (f *Framer) Overflows() uint64 {
	return f.overflows
}
