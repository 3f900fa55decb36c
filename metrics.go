package goSession

import (
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSessionCreated counts sessions minted with a fresh id.
	MetricSessionCreated MetricID = iota
	// MetricResolveCacheHit counts resolves served by the cache tier.
	MetricResolveCacheHit
	// MetricResolveDurableHit counts resolves that fell back to the durable tier.
	MetricResolveDurableHit
	// MetricResolveMiss counts resolves of ids neither tier holds.
	MetricResolveMiss
	// MetricSessionExpired counts sessions deleted lazily on resolve.
	MetricSessionExpired
	// MetricSessionDeleted counts deletes, explicit or implied.
	MetricSessionDeleted
	// MetricSessionEmptied counts mutations that left a session empty and deleted it.
	MetricSessionEmptied
	// MetricWriteBackScheduled counts durable write-backs handed to the executor.
	MetricWriteBackScheduled
	// MetricWriteBackFailed counts durable write-backs that failed.
	MetricWriteBackFailed
	// MetricWriteBackDropped counts durable write-backs the executor refused.
	MetricWriteBackDropped
	// MetricCacheFault counts swallowed cache tier errors.
	MetricCacheFault
	// MetricIDCollision counts generated ids that were already in use.
	MetricIDCollision
	// MetricIDCheckRetry counts retried uniqueness checks.
	MetricIDCheckRetry
	// MetricCSRFIssued counts issued CSRF tokens.
	MetricCSRFIssued
	// MetricCSRFAccepted counts CSRF tokens validated and consumed.
	MetricCSRFAccepted
	// MetricCSRFRejected counts failed CSRF validations.
	MetricCSRFRejected
	// MetricCSRFPurged counts expired or malformed CSRF tokens purged.
	MetricCSRFPurged
	// MetricResolveLatency is the resolve latency histogram.
	MetricResolveLatency
	metricIDCount
)

// eventMetrics maps store events onto counters.
var eventMetrics = [...]MetricID{
	session.EventCreated:             MetricSessionCreated,
	session.EventResolvedFromCache:   MetricResolveCacheHit,
	session.EventResolvedFromDurable: MetricResolveDurableHit,
	session.EventResolveMiss:         MetricResolveMiss,
	session.EventExpired:             MetricSessionExpired,
	session.EventDeleted:             MetricSessionDeleted,
	session.EventEmptiedOnMutate:     MetricSessionEmptied,
	session.EventWriteBackScheduled:  MetricWriteBackScheduled,
	session.EventWriteBackFailed:     MetricWriteBackFailed,
	session.EventWriteBackDropped:    MetricWriteBackDropped,
	session.EventCacheFault:          MetricCacheFault,
	session.EventIDCollision:         MetricIDCollision,
	session.EventIDCheckRetry:        MetricIDCheckRetry,
	session.EventCSRFIssued:          MetricCSRFIssued,
	session.EventCSRFAccepted:        MetricCSRFAccepted,
	session.EventCSRFRejected:        MetricCSRFRejected,
	session.EventCSRFPurged:          MetricCSRFPurged,
}

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

// Metrics holds lock-free engine counters. It implements [session.Observer].
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics configured by cfg.
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

// LatencyEnabled reports whether the resolve latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in histogram id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricResolveLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// ObserveEvent implements [session.Observer].
func (m *Metrics) ObserveEvent(ev session.Event) {
	if int(ev) >= len(eventMetrics) {
		return
	}
	m.Inc(eventMetrics[ev])
}

// ObserveResolve implements [session.Observer].
func (m *Metrics) ObserveResolve(d time.Duration) {
	m.Observe(MetricResolveLatency, d)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
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
		if id == MetricResolveLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricResolveLatency].buckets[i])
		}
		s.Histograms[MetricResolveLatency] = buckets
	}

	return s
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
