package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrUnattached is returned when a mutation targets a deleted or never-created session.
	ErrUnattached = session.ErrUnattached
	// ErrIDGeneration is returned when a fresh id cannot be proven unique.
	ErrIDGeneration = session.ErrIDGeneration
	// ErrDurableCreate is returned when a non-empty create is not acknowledged by the durable tier.
	ErrDurableCreate = session.ErrDurableCreate
	// ErrDurableUnavailable wraps durable tier faults.
	ErrDurableUnavailable = session.ErrDurableUnavailable
	// ErrCacheUnavailable wraps cache tier faults surfaced by StorageLocation.
	ErrCacheUnavailable = session.ErrCacheUnavailable
	// ErrInconsistentDelete is returned when a delete finds no durable row where one was expected.
	ErrInconsistentDelete = session.ErrInconsistentDelete
	// ErrUnsupportedRecordVersion is returned for stored records with an unknown codec version.
	ErrUnsupportedRecordVersion = session.ErrUnsupportedRecordVersion
	// ErrCorruptRecord is returned for stored records that cannot be decoded.
	ErrCorruptRecord = session.ErrCorruptRecord
	// ErrExecutorClosed is returned when write-back is attempted after Close.
	ErrExecutorClosed = session.ErrExecutorClosed
	// ErrQueueFull is returned by a write-back pool configured to drop under backpressure.
	ErrQueueFull = session.ErrQueueFull

	// ErrBuilderUsed is returned by a second call to Builder.Build.
	ErrBuilderUsed = errors.New("builder already used")
)
