package app

import (
	"time"

	"github.com/bft-labs/aprsship/pkg/log"
)

// Default decode health thresholds.
const (
	DefaultDecodeFailureThreshold = 100
	DefaultDecodeFailureWindow    = time.Minute
)

// FailureMonitor raises a non-fatal health signal when decode failures
// reach threshold within a sliding window. The signal fires once per
// crossing and re-arms once the count falls below half the threshold.
//
// Not safe for concurrent use; the pipeline owns it.
type FailureMonitor struct {
	threshold int
	window    time.Duration
	times     []time.Time
	degraded  bool
	logger    log.Logger
	events    PipelineEvents
}

// NewFailureMonitor creates a monitor. Non-positive arguments select the defaults.
func NewFailureMonitor(threshold int, window time.Duration, logger log.Logger, events PipelineEvents) *FailureMonitor {
	if threshold <= 0 {
		threshold = DefaultDecodeFailureThreshold
	}
	if window <= 0 {
		window = DefaultDecodeFailureWindow
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if events == nil {
		events = NoopEvents{}
	}
	return &FailureMonitor{
		threshold: threshold,
		window:    window,
		times:     make([]time.Time, 0, threshold),
		logger:    logger,
		events:    events,
	}
}

// Record notes one failure at time at.
func (m *FailureMonitor) Record(at time.Time) {
	m.evict(at)
	if len(m.times) == m.threshold {
		// Only the newest threshold timestamps matter.
		copy(m.times, m.times[1:])
		m.times = m.times[:len(m.times)-1]
	}
	m.times = append(m.times, at)

	if len(m.times) >= m.threshold && !m.degraded {
		m.degraded = true
		m.logger.Warn("decode failure rate above threshold",
			log.Int("failures", len(m.times)),
			log.Duration("window", m.window),
		)
		m.events.OnHealthDegraded(len(m.times), m.window)
	}
}

// Degraded reports whether the monitor is currently signalling.
func (m *FailureMonitor) Degraded(now time.Time) bool {
	m.evict(now)
	return m.degraded
}

func (m *FailureMonitor) evict(now time.Time) {
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(m.times) && !m.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		m.times = append(m.times[:0], m.times[i:]...)
	}
	if m.degraded && len(m.times) < (m.threshold+1)/2 {
		m.degraded = false
		m.logger.Info("decode failure rate recovered",
			log.Int("failures", len(m.times)),
			log.Duration("window", m.window),
		)
	}
}
