package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	WriteBackDropped() uint64
}

// family is one OTel counter covering several engine counters told apart by an attribute.
type family struct {
	name   string
	help   string
	key    string
	series []familySeries
}

type familySeries struct {
	value string
	id    goSession.MetricID
}

var families = []family{
	{
		name: "gosession.sessions",
		help: "Session lifecycle transitions.",
		key:  "event",
		series: []familySeries{
			{"created", goSession.MetricSessionCreated},
			{"expired", goSession.MetricSessionExpired},
			{"deleted", goSession.MetricSessionDeleted},
			{"emptied", goSession.MetricSessionEmptied},
		},
	},
	{
		name: "gosession.resolves",
		help: "Resolves by the tier that answered.",
		key:  "source",
		series: []familySeries{
			{"cache", goSession.MetricResolveCacheHit},
			{"durable", goSession.MetricResolveDurableHit},
			{"miss", goSession.MetricResolveMiss},
		},
	},
	{
		name: "gosession.write_backs",
		help: "Durable write-backs by outcome.",
		key:  "outcome",
		series: []familySeries{
			{"scheduled", goSession.MetricWriteBackScheduled},
			{"failed", goSession.MetricWriteBackFailed},
			{"dropped", goSession.MetricWriteBackDropped},
		},
	},
	{
		name: "gosession.id.checks",
		help: "Id uniqueness checks that did not succeed first time.",
		key:  "result",
		series: []familySeries{
			{"collision", goSession.MetricIDCollision},
			{"retry", goSession.MetricIDCheckRetry},
		},
	},
	{
		name: "gosession.csrf.tokens",
		help: "CSRF token operations by outcome.",
		key:  "outcome",
		series: []familySeries{
			{"issued", goSession.MetricCSRFIssued},
			{"accepted", goSession.MetricCSRFAccepted},
			{"rejected", goSession.MetricCSRFRejected},
			{"purged", goSession.MetricCSRFPurged},
		},
	},
	{
		name: "gosession.cache.faults",
		help: "Swallowed cache tier errors.",
		series: []familySeries{
			{"", goSession.MetricCacheFault},
		},
	},
}

type observedSeries struct {
	id    goSession.MetricID
	attrs metric.ObserveOption
}

type observedFamily struct {
	instrument metric.Int64ObservableCounter
	series     []observedSeries
}

// OTelExporter publishes engine metrics as observable instruments on a meter.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	families []observedFamily

	latencyBuckets metric.Int64ObservableGauge
	latencyCount   metric.Int64ObservableGauge
	bucketAttrs    [8]metric.ObserveOption

	poolRejected metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments for engine on meter.
func NewOTelExporter(meter metric.Meter, engine *goSession.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments reading from source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		of := observedFamily{instrument: ins}
		for _, s := range f.series {
			var set attribute.Set
			if f.key != "" {
				set = attribute.NewSet(attribute.String(f.key, s.value))
			}
			of.series = append(of.series, observedSeries{id: s.id, attrs: metric.WithAttributeSet(set)})
		}
		e.families = append(e.families, of)
		observables = append(observables, ins)
	}

	var err error
	e.latencyBuckets, err = meter.Int64ObservableGauge(
		"gosession.resolve.latency.bucket",
		metric.WithDescription("Cumulative resolve latency bucket counts keyed by upper bound in seconds."),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency bucket gauge: %w", err)
	}
	e.latencyCount, err = meter.Int64ObservableGauge(
		"gosession.resolve.latency.count",
		metric.WithDescription("Resolve latency sample count."),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	for i := range e.bucketAttrs {
		le := "+Inf"
		if i < len(internaldefs.HistogramUpperBounds) {
			le = strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'g', -1, 64)
		}
		e.bucketAttrs[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}

	e.poolRejected, err = meter.Int64ObservableCounter(
		"gosession.write_backs.pool_rejected",
		metric.WithDescription(internaldefs.WriteBackDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create pool rejected counter: %w", err)
	}
	observables = append(observables, e.latencyBuckets, e.latencyCount, e.poolRejected)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 {
		return nil
	}

	for _, f := range e.families {
		for _, s := range f.series {
			observer.ObserveInt64(f.instrument, int64(snapshot.Counters[s.id]), s.attrs)
		}
	}

	if raw, ok := snapshot.Histograms[goSession.MetricResolveLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, v := range cumulative {
			observer.ObserveInt64(e.latencyBuckets, int64(v), e.bucketAttrs[i])
		}
		observer.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
	}

	observer.ObserveInt64(e.poolRejected, int64(e.source.WriteBackDropped()))
	return nil
}

// Close unregisters the callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
