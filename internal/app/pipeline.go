package app

import (
	"errors"

	"github.com/bft-labs/aprsship/internal/dedup"
	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/internal/ports"
	"github.com/bft-labs/aprsship/pkg/log"
)

// FrameSubmitter accepts frames for persistence, blocking while full.
type FrameSubmitter interface {
	Submit(frame domain.Frame) error
	CloseInput()
}

// Pipeline decodes, deduplicates and forwards lines to the sink.
// It is the single consumer of the line queue, so frames reach the sink
// in decode order.
type Pipeline struct {
	decoder ports.Decoder
	window  *dedup.Window
	sink    FrameSubmitter
	health  *FailureMonitor
	stats   *Stats
	logger  log.Logger
}

// NewPipeline wires the per-line stages.
func NewPipeline(decoder ports.Decoder, window *dedup.Window, sink FrameSubmitter, health *FailureMonitor, stats *Stats, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if health == nil {
		health = NewFailureMonitor(0, 0, logger, nil)
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Pipeline{
		decoder: decoder,
		window:  window,
		sink:    sink,
		health:  health,
		stats:   stats,
		logger:  logger,
	}
}

// Run consumes lines until the channel is closed, then closes the sink's
// input so it can flush. Lines already queued at shutdown are still
// processed. It returns early if the sink stops accepting frames; the sink
// reports its own failure, so that case returns nil.
func (p *Pipeline) Run(lines <-chan domain.RawLine) error {
	defer p.sink.CloseInput()
	for line := range lines {
		if err := p.Process(line); err != nil {
			if errors.Is(err, domain.ErrSinkClosed) {
				p.logger.Debug("sink closed, pipeline stopping")
				return nil
			}
			return err
		}
	}
	return nil
}

// Process handles one line. Decode failures and duplicates are counted and
// swallowed; only a sink failure is returned.
func (p *Pipeline) Process(line domain.RawLine) error {
	if line.Comment {
		return nil
	}

	frame, err := p.decoder.Decode(line)
	if err != nil {
		p.stats.decodeFailures.Add(1)
		reason := "unknown"
		var de *domain.DecodeError
		if errors.As(err, &de) {
			reason = string(de.Reason)
		}
		p.logger.Debug("decode failed",
			log.String("reason", reason),
			log.Line(line.Text),
			log.Err(err),
		)
		p.health.Record(line.ReceivedAt)
		return nil
	}
	p.stats.decoded.Add(1)

	fp, dup := p.window.Check(frame)
	if dup {
		p.stats.duplicates.Add(1)
		return nil
	}
	return p.sink.Submit(frame.WithFingerprint(fp))
}
