// Package stage implements the staging buffer that Close snapshots
// producer memory into before handing write records to the worker: a
// contiguous byte region with a current capacity and a used length,
// following one of three strategies (dynamic memory, fixed memory, mapped
// file).
package stage

import "github.com/jbigot/ah5go/errors"

// Buffer is a staging strategy. Every Close cycle calls EnsureCapacity once
// with the total bytes needed, then Reset, then Take for each record that
// fits; records that don't fit are the caller's cue to fall back to a
// synchronous write.
type Buffer interface {
	// EnsureCapacity attempts to make at least n bytes available for the
	// upcoming cycle. It reports whether n bytes are now available; a
	// false result with a nil error (a fixed capacity that is too small, an
	// expected, handled case) means the caller must size its per-record
	// fallback against the existing, unchanged capacity. A non-nil error
	// means growing failed (a DynamicBuffer over its MaxBytes, a failed
	// remap) and the cycle cannot proceed.
	EnsureCapacity(n int) (bool, error)
	// Reset starts a new cycle, rewinding the used length to zero.
	Reset()
	// Remaining returns the bytes still available in the current cycle.
	Remaining() int
	// Take returns a fresh len(== n) window into the buffer and advances
	// the used cursor. It panics if n exceeds Remaining(); callers must
	// check first.
	Take(n int) []byte
	// Close releases any OS resources the strategy owns.
	Close() error
}

func roundUp(n, granularity int) int {
	if granularity <= 0 {
		return n
	}
	if r := n % granularity; r != 0 {
		return n + (granularity - r)
	}
	return n
}

func sizeError(err error) error {
	return errors.E(errors.OOM, "stage: grow staging buffer", err)
}
