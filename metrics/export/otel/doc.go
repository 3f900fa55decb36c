// Package otel publishes session engine metrics through an OpenTelemetry meter.
//
// Engine counters are grouped into a few instruments told apart by attributes:
// gosession.sessions{event}, gosession.resolves{source}, gosession.write_backs{outcome},
// gosession.id.checks{result}, gosession.csrf.tokens{outcome} and gosession.cache.faults.
// The resolve latency histogram is published as cumulative bucket gauges keyed by "le".
// A single callback reads [goSession.Engine.MetricsSnapshot] on each collection cycle;
// a disabled engine yields no observations.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
