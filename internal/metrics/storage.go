package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kumasuke/fakes3/internal/storage"
)

// StorageMetrics records object store operations. It implements storage.Observer.
type StorageMetrics struct {
	bytes    *prometheus.CounterVec
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	ioErrors *prometheus.CounterVec
}

var _ storage.Observer = (*StorageMetrics)(nil)

// NewStorageMetrics registers storage collectors on reg.
func NewStorageMetrics(reg prometheus.Registerer) *StorageMetrics {
	m := &StorageMetrics{
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Total bytes processed by storage operations.",
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "ops_total",
			Help:      "Total number of storage operations by result.",
		}, []string{"op", "result"}), // result = "ok" | "error"
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "op_duration_seconds",
			Help:      "Histogram of storage operation durations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ioErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "io_failures_total",
			Help:      "Storage operations that failed on the filesystem rather than on caller input.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.bytes, m.ops, m.latency, m.ioErrors)
	return m
}

// Observe records one storage operation. dur must cover the whole operation.
func (m *StorageMetrics) Observe(op string, bytes int64, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if bytes > 0 {
		m.bytes.WithLabelValues(op).Add(float64(bytes))
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(dur.Seconds())
	if errors.Is(err, storage.ErrIO) {
		m.ioErrors.WithLabelValues(op).Inc()
	}
}
