// Package goSession provides a tiered session store: a Redis (or in-process) cache in
// front of a durable table store, with lazy expiration, asynchronous durable write-back,
// and one-time CSRF tokens kept inside session data.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build]. A single
// [session.Session] value is owned by one request at a time.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config], and
// [MetricsSnapshot]. The store orchestration, record codec, and tier contracts live in the
// session package; tier implementations live under tier/; the write-back worker pool,
// logger construction, and config loading live under internal/.
//
// # What this package must NOT do
//
//   - Emit cookies or HTTP responses. Cookie attributes are only carried for the caller.
//   - Wait for durable write-backs on the request path.
//   - Import any sub-package that re-imports goSession (no import cycles).
package goSession
