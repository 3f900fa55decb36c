package session

import "errors"

var (
	// ErrUnattached is returned when a mutation, save, or delete targets a session without an id.
	ErrUnattached = errors.New("session is not attached")
	// ErrIDGeneration is returned when a unique id cannot be proven absent from both tiers.
	ErrIDGeneration = errors.New("session id generation failed")
	// ErrDurableCreate is returned when a non-empty create does not obtain a durable row id.
	ErrDurableCreate = errors.New("durable session create failed")
	// ErrDurableUnavailable wraps durable tier faults surfaced to callers.
	ErrDurableUnavailable = errors.New("durable tier unavailable")
	// ErrCacheUnavailable wraps cache tier faults surfaced to callers.
	ErrCacheUnavailable = errors.New("cache tier unavailable")
	// ErrInconsistentDelete is returned when a delete removes no durable row although one was known to exist.
	ErrInconsistentDelete = errors.New("durable session row missing on delete")
	// ErrUnsupportedRecordVersion is returned when a stored record carries an unknown codec version.
	ErrUnsupportedRecordVersion = errors.New("unsupported session record version")
	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt session record")
	// ErrExecutorClosed is returned by executors that no longer accept tasks.
	ErrExecutorClosed = errors.New("write-back executor closed")
	// ErrQueueFull is returned by executors configured to drop tasks under backpressure.
	ErrQueueFull = errors.New("write-back queue full")
)
