package alloc

import (
	"errors"
	"fmt"
)

var (
	// ErrOversize indicates the request needs a class above MaxBits.
	ErrOversize = errors.New("alloc: request exceeds largest size class")

	// ErrOutOfMemory indicates no chunk could be obtained, even after a retry.
	ErrOutOfMemory = errors.New("alloc: out of shared memory")

	// ErrBadSize indicates a negative request size.
	ErrBadSize = errors.New("alloc: negative size")

	// ErrInvalidHandle indicates a reference that is not a live allocation.
	ErrInvalidHandle = errors.New("alloc: reference is not an allocated chunk")

	// ErrCorrupt is wrapped by every CorruptionError.
	ErrCorrupt = errors.New("alloc: shared segment corrupted")
)

// CorruptionError describes a chunk header that violates the allocator's
// invariants.
type CorruptionError struct {
	Offset uint64
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("alloc: corrupted chunk at 0x%X: %s", e.Offset, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return ErrCorrupt }

func corruptf(off uint64, format string, args ...any) error {
	return &CorruptionError{Offset: off, Reason: fmt.Sprintf(format, args...)}
}
