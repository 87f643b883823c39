package framing

import (
	"io"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/pkg/log"
)

const readChunkSize = 4096

// Reader yields lines from a byte stream, one per Next call.
type Reader struct {
	src     io.Reader
	framer  *Framer
	chunk   []byte
	pending []domain.RawLine
	now     func() time.Time
	logger  log.Logger
	err     error
}

// NewReader wraps src. Lines longer than maxLen are dropped.
func NewReader(src io.Reader, maxLen int, logger log.Logger) *Reader {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Reader{
		src:    src,
		framer: NewFramer(maxLen, logger),
		chunk:  make([]byte, readChunkSize),
		now:    time.Now,
		logger: logger,
	}
}

// Next blocks until a complete line is available.
// It returns the read error (io.EOF on remote close) once all lines
// completed before the error have been returned. An unterminated tail
// is never emitted.
func (r *Reader) Next() (domain.RawLine, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return domain.RawLine{}, r.err
		}
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.framer.Feed(r.chunk[:n], r.now(), r.push)
		}
		if err != nil {
			r.err = err
			if n := r.framer.Pending(); n > 0 {
				r.logger.Debug("unterminated line discarded", log.Int("bytes", n), log.Err(err))
			}
		}
	}
	line := r.pending[0]
	r.pending[0] = domain.RawLine{}
	r.pending = r.pending[1:]
	return line, nil
}

func (r *Reader) push(line domain.RawLine) {
	r.pending = append(r.pending, line)
}

// Overflows returns how many oversized lines were discarded.
func (r *Reader) Overflows() uint64 {
	return r.framer.Overflows()
}
