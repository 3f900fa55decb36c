// Package writeback runs detached durable-tier writes for the session store.
//
// # Components
//
//   - [Pool]: a bounded queue consumed by a fixed set of workers, with drop-if-full or
//     block-if-full submission.
//   - [Inline]: runs each task synchronously on the submitting goroutine, for tests
//     that assert on durable state right after a call returns.
//
// # Architecture boundaries
//
// This package owns queueing and worker lifecycle. It does NOT inspect tasks, retry them,
// or report their outcome to the submitter; tasks log their own failures.
package writeback
