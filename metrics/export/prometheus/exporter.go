package prometheus

import (
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrNilSource is returned when the exporter has nothing to read from.
var ErrNilSource = errors.New("nil metrics source")

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	WriteBackDropped() uint64
	WriteBackPending() int
}

// Collector is a [prometheus.Collector] reading engine metrics on every scrape.
type Collector struct {
	source     metricsSource
	counters   map[goSession.MetricID]*prometheus.Desc
	histograms map[goSession.MetricID]*prometheus.Desc
	dropped    *prometheus.Desc
	pending    *prometheus.Desc
}

// Exporter serves a private registry holding one [Collector].
type Exporter struct {
	collector *Collector
	registry  *prometheus.Registry
}

// NewPrometheusExporter returns an exporter for engine.
func NewPrometheusExporter(engine *goSession.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource returns an exporter reading from source.
func NewPrometheusExporterFromSource(source metricsSource) (*Exporter, error) {
	collector, err := NewCollector(source)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		return nil, err
	}
	return &Exporter{collector: collector, registry: registry}, nil
}

// NewCollector returns a collector for callers registering into their own registry.
func NewCollector(source metricsSource) (*Collector, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	c := &Collector{
		source:     source,
		counters:   make(map[goSession.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms: make(map[goSession.MetricID]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		dropped:    prometheus.NewDesc(internaldefs.WriteBackDroppedName, internaldefs.WriteBackDroppedHelp, nil, nil),
		pending: prometheus.NewDesc(
			"gosession_write_back_pending",
			"Write-backs queued in the engine-owned pool.",
			nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return c, nil
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range internaldefs.CounterDefs {
		ch <- c.counters[def.ID]
	}
	for _, def := range internaldefs.HistogramDefs {
		ch <- c.histograms[def.ID]
	}
	ch <- c.dropped
	ch <- c.pending
}

// Collect implements [prometheus.Collector]. Disabled metrics yield no samples.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()

	for _, def := range internaldefs.CounterDefs {
		v, ok := snapshot.Counters[def.ID]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.counters[def.ID], prometheus.CounterValue, float64(v))
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[i]
		}
		// Only bucket counts are tracked; the sum is reported as zero.
		ch <- prometheus.MustNewConstHistogram(
			c.histograms[def.ID],
			cumulative[len(cumulative)-1],
			0,
			buckets,
		)
	}

	if len(snapshot.Counters) == 0 {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.source.WriteBackDropped()))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.source.WriteBackPending()))
}

// Registry returns the exporter's private registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
