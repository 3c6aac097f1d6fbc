package goConsole

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricStartNoCredential counts starts that found no persisted credential.
	MetricStartNoCredential MetricID = iota
	// MetricStartRestored counts starts that restored a session from the persisted credential.
	MetricStartRestored
	// MetricStartRejected counts starts whose persisted credential was rejected or expired.
	MetricStartRejected
	// MetricStartStorageFailure counts starts that could not read the credential backend.
	MetricStartStorageFailure
	// MetricLoginSuccess counts logins that reached StatusAuthenticated.
	MetricLoginSuccess
	// MetricLoginRejected counts logins refused by the API.
	MetricLoginRejected
	// MetricLoginNetworkFailure counts logins that failed on transport.
	MetricLoginNetworkFailure
	// MetricProfileFetchFailure counts profile fetches that failed, at start or after login.
	MetricProfileFetchFailure
	// MetricLogout counts Logout calls.
	MetricLogout
	// MetricStaleResultDiscarded counts operation results dropped by the epoch fence.
	MetricStaleResultDiscarded
	// MetricCredentialStoreFailure counts failed credential Save or Clear calls.
	MetricCredentialStoreFailure
	// MetricSubscriberDropped counts snapshots not delivered to a slow subscriber.
	MetricSubscriberDropped
	// MetricGuardAllow counts guard decisions that allowed navigation.
	MetricGuardAllow
	// MetricGuardRedirect counts guard decisions that redirected to login.
	MetricGuardRedirect
	// MetricGuardLoading counts guard decisions that showed the loading placeholder.
	MetricGuardLoading
	// MetricLoginLatency is the histogram of Login round-trip durations.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. A nil or disabled *Metrics ignores writes.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates counters configured by cfg.
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

// LatencyEnabled reports whether the login latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only MetricLoginLatency is a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricLoginLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

// login round trips are two HTTP calls; buckets are wider than a cache lookup's
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 25:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 500:
		return 4
	case ms <= 1000:
		return 5
	case ms <= 2500:
		return 6
	default:
		return 7
	}
}
