package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bft-labs/aprsship/internal/domain"
	"github.com/bft-labs/aprsship/pkg/log"
)

// mockLogger records "level msg" lines for assertions.
type mockLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (m *mockLogger) record(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, level+" "+msg)
}

func (m *mockLogger) Debug(msg string, fields ...log.Field) { m.record("debug", msg) }
func (m *mockLogger) Info(msg string, fields ...log.Field)  { m.record("info", msg) }
func (m *mockLogger) Warn(msg string, fields ...log.Field)  { m.record("warn", msg) }
func (m *mockLogger) Error(msg string, fields ...log.Field) { m.record("error", msg) }

// contains reports whether any recorded message starts with prefix.
func (m *mockLogger) contains(prefix string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// memStore is an in-memory FrameStore with failure injection.
type memStore struct {
	mu       sync.Mutex
	frames   []domain.Frame
	calls    int
	failNext int
	block    chan struct{}
	closed   bool
}

var errStoreDown = errors.New("store unavailable")

func (s *memStore) InsertBatch(ctx context.Context, frames []domain.Frame) error {
	s.mu.Lock()
	s.calls++
	block := s.block
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return errStoreDown
	}
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) stored() []domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Frame(nil), s.frames...)
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// chanSubmitter collects submitted frames for pipeline tests.
type chanSubmitter struct {
	mu     sync.Mutex
	frames []domain.Frame
	closed bool
}

func (c *chanSubmitter) Submit(f domain.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *chanSubmitter) CloseInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// closedSubmitter rejects every frame as a stopped sink does.
type closedSubmitter struct {
	chanSubmitter
	submits int
}

func (c *closedSubmitter) Submit(domain.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits++
	return domain.ErrSinkClosed
}
