package nbrly

import "errors"

// Sentinel errors returned by store and orchestrator operations. NotFound
// conditions are never represented as errors — lookups return a zero value
// plus a bool, matching §7 of the design: "NotFound is not an error".
var (
	// ErrInsufficientCapacity is returned when the index file has no EMPTY
	// slot left, or the data file cannot accommodate a new or grown record.
	ErrInsufficientCapacity = errors.New("nbrly: insufficient capacity")

	// ErrInvalidData is returned when decoded bytes violate the record
	// codec: a bad length prefix, invalid UTF-8, or a negative dimension.
	ErrInvalidData = errors.New("nbrly: invalid data")

	// ErrCorrupt is returned when index/data invariants are violated on
	// open. Recoverable via Store.AttemptRepair.
	ErrCorrupt = errors.New("nbrly: corrupt store")

	// ErrClosed names an operation on a closed store or database. No Store
	// or DB method returns it: methods do not check for a prior Close.
	ErrClosed = errors.New("nbrly: closed")

	// ErrCancelled names a cancelled operation. No operation in this
	// package accepts a cancellation token, so none returns it.
	ErrCancelled = errors.New("nbrly: cancelled")

	// ErrUnsupported is returned by operations forbidden by contract, such
	// as positional insert on the list facade.
	ErrUnsupported = errors.New("nbrly: unsupported operation")

	// ErrDimensionMismatch is returned when NewBatch is given records of
	// differing vector dimension.
	ErrDimensionMismatch = errors.New("nbrly: dimension mismatch")

	// ErrOutOfBounds is returned by CopyTo when the destination buffer or
	// start offset cannot hold the requested range.
	ErrOutOfBounds = errors.New("nbrly: out of bounds")

	// ErrTooManyTags is returned when the tag index would exceed its
	// maximum of 2^15-1 distinct tag names.
	ErrTooManyTags = errors.New("nbrly: too many tag names")

	// ErrReadOnly is returned by mutating Store operations when
	// Config.ReadOnly opened the store under a shared, not exclusive,
	// cross-process lock.
	ErrReadOnly = errors.New("nbrly: store is read-only")
)
