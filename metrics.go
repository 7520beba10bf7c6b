package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginInvalidRequest
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts every refresh whose record was gone.
	MetricRefreshReuseDetected
	// MetricReplayDetected counts the subset of reuses matched by a tombstone.
	MetricReplayDetected
	MetricIntegrityViolation
	MetricDeviceMismatch
	MetricSessionCreated
	// MetricSessionEvicted counts records removed because a newer login took the scope.
	MetricSessionEvicted
	MetricSessionRevoked
	MetricLogout
	MetricAuthenticateSuccess
	MetricAuthenticateFailure
	MetricSessionSuperseded
	MetricTokenRevoked
	MetricPermissionCacheHit
	MetricPermissionCacheMiss
	MetricPermissionCacheDegraded
	MetricAuthenticateLatency
	MetricLoginLatency
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histogram bucket
// counts are per bucket, not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// LatencySums is the total observed duration per latency metric.
	LatencySums map[MetricID]time.Duration
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to the counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram of a latency metric. Other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isLatencyMetric(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
	}
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, every histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:    map[MetricID]uint64{},
			Histograms:  map[MetricID][]uint64{},
			LatencySums: map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:    make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:  make(map[MetricID][]uint64, len(latencyMetrics)),
		LatencySums: make(map[MetricID]time.Duration, len(latencyMetrics)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range latencyMetrics {
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
			s.LatencySums[id] = time.Duration(atomic.LoadUint64(&m.histograms[id].sumNanos))
		}
	}
	return s
}

// LatencyMetrics lists the ids recorded as histograms.
func LatencyMetrics() []MetricID {
	return append([]MetricID(nil), latencyMetrics...)
}

var latencyMetrics = []MetricID{MetricAuthenticateLatency, MetricLoginLatency, MetricRefreshLatency}

func isLatencyMetric(id MetricID) bool {
	return id == MetricAuthenticateLatency || id == MetricLoginLatency || id == MetricRefreshLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
