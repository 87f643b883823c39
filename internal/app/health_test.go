package app

import (
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

// recordingEvents captures pipeline events for assertions.
type recordingEvents struct {
	mu        sync.Mutex
	states    []domain.ConnState
	persisted []int
	dropped   []int
	degraded  int
}

func (r *recordingEvents) OnConnectionStateChange(previous, current domain.ConnState, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, current)
}

func (r *recordingEvents) OnBatchPersisted(frames, attempts int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persisted = append(r.persisted, frames)
}

func (r *recordingEvents) OnBatchDropped(frames int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, frames)
}

func (r *recordingEvents) OnHealthDegraded(failures int, window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded++
}

func (r *recordingEvents) snapshot() recordingEvents {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recordingEvents{
		states:    append([]domain.ConnState(nil), r.states...),
		persisted: append([]int(nil), r.persisted...),
		dropped:   append([]int(nil), r.dropped...),
		degraded:  r.degraded,
	}
}

func TestFailureMonitor_FiresOncePerCrossing(t *testing.T) {
	ev := &recordingEvents{}
	m := NewFailureMonitor(3, time.Minute, nil, ev)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m.Record(t0)
	m.Record(t0.Add(time.Second))
	if m.Degraded(t0.Add(time.Second)) {
		t.Fatal("degraded below threshold")
	}
	m.Record(t0.Add(2 * time.Second))
	m.Record(t0.Add(3 * time.Second))
	m.Record(t0.Add(4 * time.Second))

	if ev.snapshot().degraded != 1 {
		t.Fatalf("degraded events = %d, want 1", ev.snapshot().degraded)
	}
	if !m.Degraded(t0.Add(5 * time.Second)) {
		t.Fatal("expected degraded state")
	}

	// Window slides past every failure: recovered, then a new burst fires again.
	later := t0.Add(5 * time.Minute)
	if m.Degraded(later) {
		t.Fatal("expected recovery after window elapsed")
	}
	for i := 0; i < 3; i++ {
		m.Record(later.Add(time.Duration(i) * time.Second))
	}
	if ev.snapshot().degraded != 2 {
		t.Errorf("degraded events = %d, want 2", ev.snapshot().degraded)
	}
}

func TestFailureMonitor_SpreadFailuresStayHealthy(t *testing.T) {
	ev := &recordingEvents{}
	m := NewFailureMonitor(5, 10*time.Second, nil, ev)
	t0 := time.Now()
	for i := 0; i < 100; i++ {
		m.Record(t0.Add(time.Duration(i) * 3 * time.Second))
	}
	if ev.snapshot().degraded != 0 {
		t.Errorf("degraded events = %d, want 0", ev.snapshot().degraded)
	}
}
