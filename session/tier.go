package session

import (
	"context"
	"time"
)

// Durable row columns.
const (
	ColumnID        = "id"
	ColumnData      = "data"
	ColumnTimestamp = "timestamp"
	ColumnRowID     = "rowid"
)

// Cache is the volatile tier. Implementations may lose any entry at any time; a miss is
// reported as (Record{}, false, nil), never as an error.
type Cache interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Set(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Row is one durable table row keyed by column name.
type Row map[string]any

// Filter is a conjunction of column equality predicates.
type Filter map[string]any

// Durable is the persistent tier. Every table has a string primary key in column "id".
type Durable interface {
	// Select returns the requested columns of rows matching filter. A nil or empty column
	// list selects every column.
	Select(ctx context.Context, table string, columns []string, filter Filter) ([]Row, error)
	// Insert adds a row and returns the row identifier assigned to it. Inserting an
	// existing primary key fails.
	Insert(ctx context.Context, table string, row Row) (string, error)
	// Update applies changes to rows matching filter and returns the number of rows changed.
	Update(ctx context.Context, table string, changes Row, filter Filter) (int64, error)
	// Delete removes rows matching filter and returns the number of rows removed.
	Delete(ctx context.Context, table string, filter Filter) (int64, error)
	// Upsert inserts row, or updates the row sharing its primary key.
	Upsert(ctx context.Context, table string, row Row) error
}

// Task is a detached unit of durable work. It must not report back to the request that
// scheduled it.
type Task func(ctx context.Context)

// Executor runs detached tasks. Submit must not wait for the task to run; it may block
// only for queue backpressure.
type Executor interface {
	Submit(task Task) error
}

// ExecutorFunc adapts a function to [Executor].
type ExecutorFunc func(task Task) error

// Submit calls f(task).
func (f ExecutorFunc) Submit(task Task) error { return f(task) }

// Event identifies an observable store transition.
type Event uint8

const (
	EventCreated Event = iota
	EventResolvedFromCache
	EventResolvedFromDurable
	EventResolveMiss
	EventExpired
	EventDeleted
	EventEmptiedOnMutate
	EventWriteBackScheduled
	EventWriteBackFailed
	EventWriteBackDropped
	EventCacheFault
	EventIDCollision
	EventIDCheckRetry
	EventCSRFIssued
	EventCSRFAccepted
	EventCSRFRejected
	EventCSRFPurged
)

// Observer receives store events. Implementations must be safe for concurrent use and
// must not block.
type Observer interface {
	ObserveEvent(ev Event)
	ObserveResolve(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveEvent(Event)            {}
func (nopObserver) ObserveResolve(time.Duration) {}
