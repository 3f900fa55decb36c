package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionCreated, Name: "gosession_created_total", Help: "Sessions created with a fresh id."},
	{ID: goSession.MetricResolveCacheHit, Name: "gosession_resolve_cache_hit_total", Help: "Resolves served by the cache tier."},
	{ID: goSession.MetricResolveDurableHit, Name: "gosession_resolve_durable_hit_total", Help: "Resolves served by the durable tier after a cache miss."},
	{ID: goSession.MetricResolveMiss, Name: "gosession_resolve_miss_total", Help: "Resolves of ids unknown to both tiers."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_expired_total", Help: "Sessions deleted lazily because they were idle too long."},
	{ID: goSession.MetricSessionDeleted, Name: "gosession_deleted_total", Help: "Session deletes."},
	{ID: goSession.MetricSessionEmptied, Name: "gosession_emptied_total", Help: "Mutations that emptied and deleted a session."},
	{ID: goSession.MetricWriteBackScheduled, Name: "gosession_write_back_scheduled_total", Help: "Durable write-backs handed to the executor."},
	{ID: goSession.MetricWriteBackFailed, Name: "gosession_write_back_failed_total", Help: "Durable write-backs that failed."},
	{ID: goSession.MetricWriteBackDropped, Name: "gosession_write_back_dropped_total", Help: "Durable write-backs refused by the executor."},
	{ID: goSession.MetricCacheFault, Name: "gosession_cache_fault_total", Help: "Swallowed cache tier errors."},
	{ID: goSession.MetricIDCollision, Name: "gosession_id_collision_total", Help: "Generated ids found already in use."},
	{ID: goSession.MetricIDCheckRetry, Name: "gosession_id_check_retry_total", Help: "Retried id uniqueness checks."},
	{ID: goSession.MetricCSRFIssued, Name: "gosession_csrf_issued_total", Help: "CSRF tokens issued."},
	{ID: goSession.MetricCSRFAccepted, Name: "gosession_csrf_accepted_total", Help: "CSRF tokens validated and consumed."},
	{ID: goSession.MetricCSRFRejected, Name: "gosession_csrf_rejected_total", Help: "CSRF validations that failed."},
	{ID: goSession.MetricCSRFPurged, Name: "gosession_csrf_purged_total", Help: "Expired or malformed CSRF tokens purged."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricResolveLatency, Name: "gosession_resolve_latency_seconds", Help: "Resolve latency histogram."},
}

// WriteBackDroppedName is the pool-level drop counter, read outside the snapshot.
const (
	WriteBackDroppedName = "gosession_write_back_pool_dropped_total"
	WriteBackDroppedHelp = "Write-backs rejected by the engine-owned pool because its queue was full."
)

// HistogramUpperBounds are the finite bucket bounds, in seconds, matching the engine's
// latency buckets. The last engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that flatten
// buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size bucket array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
