package engine

import "errors"

// Sentinel errors returned by Engine methods. Wrap with fmt.Errorf's
// %w and unwrap with errors.Is at call sites.
var (
	// ErrInvalid signals a validation failure on put's arguments
	// (nil/oversized record_id, idepo token, or data).
	ErrInvalid = errors.New("engine: invalid argument")

	// ErrCapacity signals the record table already holds MaxRecords
	// entries at put time.
	ErrCapacity = errors.New("engine: record table is full")

	// ErrNotFound signals the requested record or version pointer is
	// absent. This is a normal outcome, not a bug.
	ErrNotFound = errors.New("engine: record not found")
)
