package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/pkg/log"
)

// errShutdownRequested is the cancellation cause for an orderly stop.
var errShutdownRequested = errors.New("shutdown requested")

// ShutdownCoordinator owns the single cancellation token observed by every
// worker, tracks the workers and bounds how long shutdown may take.
//
// Workers are started with Go; Seal must be called once all are started.
// Any worker returning a non-nil error also cancels the token.
type ShutdownCoordinator struct {
	cancel context.CancelCauseFunc
	group  *errgroup.Group
	ctx    context.Context
	grace  time.Duration
	logger log.Logger

	once sync.Once
	done chan struct{}
	err  error
}

// NewShutdownCoordinator derives the token from parent.
func NewShutdownCoordinator(parent context.Context, grace time.Duration, logger log.Logger) *ShutdownCoordinator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	base, cancel := context.WithCancelCause(parent)
	group, ctx := errgroup.WithContext(base)
	return &ShutdownCoordinator{
		cancel: cancel,
		group:  group,
		ctx:    ctx,
		grace:  grace,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Context returns the cancellation token.
func (c *ShutdownCoordinator) Context() context.Context {
	return c.ctx
}

// Go starts a tracked worker.
func (c *ShutdownCoordinator) Go(name string, fn func(ctx context.Context) error) {
	c.group.Go(func() error {
		err := fn(c.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("worker failed", log.String("worker", name), log.Err(err))
			return err
		}
		c.logger.Debug("worker stopped", log.String("worker", name))
		return nil
	})
}

// Seal starts watching for all workers to exit. Call it once, after the
// last Go.
func (c *ShutdownCoordinator) Seal() {
	go func() {
		c.err = c.group.Wait()
		close(c.done)
	}()
}

// Shutdown cancels the token. Safe to call more than once.
func (c *ShutdownCoordinator) Shutdown(reason string) {
	c.once.Do(func() {
		c.logger.Info("shutdown requested", log.String("reason", reason))
		c.cancel(errShutdownRequested)
	})
}

// Done is closed once every worker has returned.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the first worker failure. Valid after Done is closed.
func (c *ShutdownCoordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// WaitWithTimeout waits for workers to finish for at most the grace
// period. Returns ErrShutdownTimeout if they do not.
func (c *ShutdownCoordinator) WaitWithTimeout() error {
	t := time.NewTimer(c.grace)
	defer t.Stop()
	select {
	case <-c.done:
		return c.err
	case <-t.C:
		c.logger.Warn("shutdown timeout, forcing exit",
			log.Duration("timeout", c.grace),
		)
		return domain.ErrShutdownTimeout
	}
}
