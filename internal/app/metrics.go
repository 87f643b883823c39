package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/aprsship/internal/domain"
)

const metricsNamespace = "aprsship"

// Metrics exports Stats and connection state to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg        prometheus.Registerer
	collectors []prometheus.Collector

	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram
}

// newMetrics registers collectors backed by stats. It returns nil when reg
// is nil.
func newMetrics(reg prometheus.Registerer, stats *Stats, connState func() domain.ConnState) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	counter := func(name, help string, load func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) })
	}

	m := &Metrics{
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "sink",
			Name:      "batch_write_duration_seconds",
			Help:      "Time spent writing a batch, retries included",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "sink",
			Name:      "batch_frames",
			Help:      "Frames per written batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	collectors := []prometheus.Collector{
		counter("lines_received_total", "Lines read from the APRS-IS session, comments included", stats.linesReceived.Load),
		counter("comment_lines_total", "Server comment and keep-alive lines", stats.comments.Load),
		counter("overflow_lines_total", "Lines discarded for exceeding the maximum length", stats.overflows.Load),
		counter("frames_decoded_total", "Lines decoded into frames", stats.decoded.Load),
		counter("decode_failures_total", "Lines rejected by the decoder", stats.decodeFailures.Load),
		counter("frames_duplicate_total", "Frames dropped as duplicates", stats.duplicates.Load),
		counter("frames_persisted_total", "Frames committed to storage", stats.persisted.Load),
		counter("frames_dropped_total", "Frames dropped after storage retries were exhausted", stats.storageDropped.Load),
		counter("reconnects_total", "Session reconnect attempts", stats.reconnects.Load),
		counter("backpressure_stalls_total", "Times reads paused because the pipeline was full", stats.stalls.Load),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connection_state",
			Help:      "Session state: 0 Disconnected, 1 Connecting, 2 Authenticating, 3 Streaming, 4 Closing",
		}, func() float64 { return float64(connState()) }),
		m.batchDuration,
		m.batchSize,
	}
	m.reg = reg
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			m.unregister()
			return nil, err
		}
		m.collectors = append(m.collectors, c)
	}
	return m, nil
}

// unregister removes every collector so a later run can register again.
func (m *Metrics) unregister() {
	if m == nil {
		return
	}
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
	m.collectors = nil
}

func (m *Metrics) observeBatch(frames int, seconds float64) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(seconds)
	m.batchSize.Observe(float64(frames))
}
