// Package session implements a tiered session store: a volatile cache tier in front of a
// durable tier, with lazy expiration, write-through caching, asynchronous durable
// write-back, and one-time CSRF tokens kept inside session data.
//
// # Tiers
//
// The [Cache] tier is written synchronously on every mutation and is the fast path for
// reads. It is treated as lossy: any entry may disappear at any time. The [Durable] tier
// is the fallback of record. Routine saves and timestamp refreshes reach it through an
// [Executor] as detached tasks; the initial non-empty create and every delete are applied
// synchronously.
//
// # Concurrency
//
// [Store] methods are safe for concurrent use. No lock protects a single session id:
// when two requests mutate the same id concurrently, the cache keeps the write that
// completed last, and the durable tier keeps the write-back task that finished last.
// These two orders are not guaranteed to agree, so the tiers may diverge until the next
// write of that id. Durable writes of one id are serialized, and a delete marks the id so
// that write-backs still queued for it are skipped when they run. A Save on a stale copy
// of the session made by another request after the delete is the one write that can
// still recreate the row. Sessions are expected to have a single owner per request.
//
// # Architecture boundaries
//
// This package owns the [Session] model, the record codec, the ID generator, the CSRF
// token manager, and the [Store] orchestration. It does NOT emit cookies or HTTP
// responses; cookie attributes are only carried on [Session] for the caller.
//
// # What this package must NOT do
//
//   - Import goSession or any tier implementation (tiers import this package).
//   - Persist an empty session to the durable tier.
//   - Re-attach a deleted id.
package session
