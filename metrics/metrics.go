// Package metrics holds the Prometheus collectors of the write path.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "batchkv"

// Acquire modes of a pool slot.
const (
	AcquireTry      = "try"
	AcquireFallback = "fallback"
)

// Chunk results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	Chunks        *prometheus.CounterVec
	ChunkDuration *prometheus.HistogramVec
	Items         *prometheus.CounterVec
	Acquires      *prometheus.CounterVec
	SlotsInUse    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunk pipelines executed, by encoding and result.",
		}, []string{"op", "result"}),
		ChunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Time from slot request to pipeline completion.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"op"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_written_total",
			Help:      "Items acknowledged by the store, by encoding.",
		}, []string{"op"}),
		Acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquires_total",
			Help:      "Pool slot acquisitions by mode.",
		}, []string{"mode"}),
		SlotsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "slots_in_use",
			Help:      "Pool slots currently lent out.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Chunks, m.ChunkDuration, m.Items, m.Acquires, m.SlotsInUse)
	}
	return m
}

// ObserveChunk records the terminal state of one chunk.
func (m *Metrics) ObserveChunk(op string, items int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.ChunkDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.Chunks.WithLabelValues(op, ResultError).Inc()
		return
	}
	m.Chunks.WithLabelValues(op, ResultOK).Inc()
	m.Items.WithLabelValues(op).Add(float64(items))
}

// ObserveAcquire records how a slot was obtained and marks it in use.
func (m *Metrics) ObserveAcquire(mode string) {
	if m == nil {
		return
	}
	m.Acquires.WithLabelValues(mode).Inc()
	m.SlotsInUse.Inc()
}

// ObserveRelease marks a slot as returned.
func (m *Metrics) ObserveRelease() {
	if m == nil {
		return
	}
	m.SlotsInUse.Dec()
}
