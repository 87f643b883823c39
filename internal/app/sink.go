package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/bft-labs/aprsship/internal/batch"
	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/internal/ports"
	"github.com/bft-labs/aprsship/pkg/log"
)

// Default sink parameters.
const (
	DefaultQueueSize         = 1024
	DefaultStorageRetries    = 3
	DefaultStorageRetryDelay = 200 * time.Millisecond
	DefaultGracePeriod       = 10 * time.Second
)

// SinkConfig configures batching and storage retries.
type SinkConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int

	// Retries is how many times a failed batch is retried. With zero
	// retries a storage failure stops the sink.
	Retries    int
	RetryDelay time.Duration

	// GracePeriod bounds storage work after shutdown is requested.
	GracePeriod time.Duration
}

func (c SinkConfig) withDefaults() SinkConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultStorageRetryDelay
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	return c
}

// Sink batches frames and writes them to the store. Batches are flushed
// when full, when the oldest frame has waited FlushInterval, and on
// shutdown.
type Sink struct {
	cfg     SinkConfig
	store   ports.FrameStore
	batcher *batch.DefaultBatcher
	stats   *Stats
	metrics *Metrics
	logger  log.Logger
	events  PipelineEvents

	in        chan domain.Frame
	done      chan struct{}
	closeOnce sync.Once
}

// NewSink creates a sink writing to store.
func NewSink(cfg SinkConfig, store ports.FrameStore, stats *Stats, metrics *Metrics, logger log.Logger, events PipelineEvents) *Sink {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if events == nil {
		events = NoopEvents{}
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Sink{
		cfg:     cfg,
		store:   store,
		batcher: batch.NewDefaultBatcher(cfg.BatchSize, cfg.FlushInterval),
		stats:   stats,
		metrics: metrics,
		logger:  logger,
		events:  events,
		in:      make(chan domain.Frame, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// Submit queues a frame, blocking while the queue is full.
// Returns ErrSinkClosed once Run has returned.
func (s *Sink) Submit(frame domain.Frame) error {
	select {
	case <-s.done:
		return domain.ErrSinkClosed
	default:
	}
	select {
	case s.in <- frame:
		return nil
	case <-s.done:
		return domain.ErrSinkClosed
	}
}

// CloseInput signals that no more frames will be submitted.
// Only the producer may call it.
func (s *Sink) CloseInput() {
	s.closeOnce.Do(func() { close(s.in) })
}

// Run writes batches until the input is closed and drained.
//
// Store calls are not interrupted by ctx directly: once ctx is done the
// open batch is flushed immediately and every remaining store call must
// finish within GracePeriod. Run returns a *domain.StorageError only when
// Retries is zero and a write fails.
func (s *Sink) Run(ctx context.Context) error {
	defer close(s.done)

	storeCtx, cancelStore := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelStore()
	stopGrace := context.AfterFunc(ctx, func() {
		time.AfterFunc(s.cfg.GracePeriod, cancelStore)
	})
	defer stopGrace()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	var timerC <-chan time.Time
	ctxDone := ctx.Done()

	for {
		select {
		case frame, ok := <-s.in:
			if !ok {
				return s.flush(storeCtx, "shutdown")
			}
			now := time.Now()
			if s.batcher.Add(frame, now) {
				timer.Stop()
				timerC = nil
				if err := s.flush(storeCtx, "size"); err != nil {
					return err
				}
				continue
			}
			if timerC == nil {
				deadline, _ := s.batcher.Deadline()
				timer.Reset(time.Until(deadline))
				timerC = timer.C
			}

		case <-timerC:
			timerC = nil
			if deadline, ok := s.batcher.Deadline(); ok && !s.batcher.Due(time.Now()) {
				// Stale fire from an earlier batch.
				timer.Reset(time.Until(deadline))
				timerC = timer.C
				continue
			}
			if err := s.flush(storeCtx, "interval"); err != nil {
				return err
			}

		case <-ctxDone:
			// Keep draining until the producer closes the input.
			ctxDone = nil
			timer.Stop()
			timerC = nil
			if err := s.flush(storeCtx, "shutdown"); err != nil {
				return err
			}
		}
	}
}

// flush writes the open batch with bounded retries. A batch that still
// fails is logged and dropped unless retries are disabled.
func (s *Sink) flush(ctx context.Context, trigger string) error {
	if !s.batcher.HasPending() {
		return nil
	}
	frames := s.batcher.Take()
	start := time.Now()
	attempts := 0

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryDelay
	eb.MaxInterval = 10 * s.cfg.RetryDelay
	eb.Multiplier = 2

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, s.store.InsertBatch(ctx, frames)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(s.cfg.Retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("batch write failed, retrying",
				log.Int("frames", len(frames)),
				log.Int("attempt", attempts),
				log.Duration("delay", next),
				log.Err(err),
			)
		}),
	)
	elapsed := time.Since(start)

	if err == nil {
		s.stats.persisted.Add(uint64(len(frames)))
		s.metrics.observeBatch(len(frames), elapsed.Seconds())
		s.logger.Debug("batch persisted",
			log.Int("frames", len(frames)),
			log.Int("attempt", attempts),
			log.String("reason", trigger),
			log.Duration("took", elapsed),
		)
		s.events.OnBatchPersisted(len(frames), attempts, elapsed)
		return nil
	}

	serr := &domain.StorageError{Attempts: attempts, Frames: len(frames), Err: err}
	s.stats.storageDropped.Add(uint64(len(frames)))
	fields := []log.Field{
		log.Int("frames", len(frames)),
		log.Int("attempt", attempts),
		log.String("reason", trigger),
		log.String("first_id", frames[0].ID),
		log.String("last_id", frames[len(frames)-1].ID),
		log.Err(err),
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Error("grace period expired, batch dropped", fields...)
	} else {
		s.logger.Error("batch dropped after retries", fields...)
	}
	s.events.OnBatchDropped(len(frames), serr)

	if s.cfg.Retries == 0 {
		return serr
	}
	return nil
}
