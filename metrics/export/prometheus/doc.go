// Package prometheus exposes session engine metrics through client_golang.
//
// [NewPrometheusExporter] wraps an engine in a [Collector] registered into a private
// registry and serves it through [Exporter.Handler]. Counter names are prefixed
// gosession_*_total; the single histogram is gosession_resolve_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the default Prometheus registry. Callers mount the Handler or
//     register the Collector themselves.
//   - Mutate engine state.
package prometheus
