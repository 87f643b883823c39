package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

func TestShutdownCoordinator_CancelsAllWorkers(t *testing.T) {
	c := NewShutdownCoordinator(context.Background(), time.Second, nil)

	var stopped atomic.Int32
	for i := 0; i < 3; i++ {
		c.Go("worker", func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Add(1)
			return ctx.Err()
		})
	}
	c.Seal()

	c.Shutdown("test")
	c.Shutdown("again")

	if err := c.WaitWithTimeout(); err != nil {
		t.Fatalf("WaitWithTimeout() = %v, want nil", err)
	}
	if stopped.Load() != 3 {
		t.Errorf("stopped = %d, want 3", stopped.Load())
	}
	if !errors.Is(context.Cause(c.Context()), errShutdownRequested) {
		t.Errorf("cause = %v, want errShutdownRequested", context.Cause(c.Context()))
	}
}

func TestShutdownCoordinator_Timeout(t *testing.T) {
	c := NewShutdownCoordinator(context.Background(), 20*time.Millisecond, nil)
	release := make(chan struct{})
	c.Go("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	c.Seal()
	c.Shutdown("test")

	start := time.Now()
	if err := c.WaitWithTimeout(); !errors.Is(err, domain.ErrShutdownTimeout) {
		t.Fatalf("WaitWithTimeout() = %v, want ErrShutdownTimeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("WaitWithTimeout did not honor the grace period")
	}
	close(release)
	<-c.Done()
}

func TestShutdownCoordinator_WorkerErrorCancelsOthers(t *testing.T) {
	c := NewShutdownCoordinator(context.Background(), time.Second, nil)
	boom := errors.New("boom")

	c.Go("failing", func(ctx context.Context) error { return boom })
	c.Go("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	c.Seal()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after a failure")
	}
	if !errors.Is(c.Err(), boom) {
		t.Errorf("Err() = %v", c.Err())
	}
}
