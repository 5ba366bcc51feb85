package alloc

import (
	"fmt"

	"github.com/joshuapare/shmseg/internal/chunk"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/internal/logger"
)

// Free releases the allocation at ref and merges it with free buddies.
// Freeing anything that is not a live allocation is fatal.
func (a *Allocator) Free(ref Ref) {
	a.seg.Lock()
	defer a.seg.Unlock()

	off, class := a.resolve(ref)
	a.ops.frees.Add(1)

	a.space.SetFree(off, class)
	a.seg.AdjustActive(class, -1)
	a.seg.AdjustUsed(-int64(format.ClassSize(class)))

	start := uint64(a.seg.DataStart())
	end := uint64(a.seg.DataEnd())
	for class < a.maxBits {
		buddy := format.Buddy(off, class)
		if buddy < start || buddy+format.ClassSize(class) > end {
			break
		}
		if !a.space.IsFree(buddy, class) {
			break
		}
		a.space.Remove(buddy)
		a.seg.AdjustFree(class, -1)

		class++
		lower := format.AlignDown(off, class)
		a.space.Invalidate(lower + format.ClassSize(class-1))
		off = lower
		a.space.SetFree(off, class)

		a.ops.merges.Add(1)
		if logAlloc {
			logger.Debug("merged buddies", "offset", off, "class", class)
		}
	}

	a.space.PushFront(a.seg.FreeList(class), off)
	a.seg.AdjustFree(class, 1)
}

// Size returns the payload capacity of the allocation at ref: 2^class minus
// the chunk header. It takes no lock.
func (a *Allocator) Size(ref Ref) int {
	_, class := a.resolve(ref)
	return int(format.ClassSize(class) - format.ChunkHeaderSize)
}

// Payload returns the payload of the allocation at ref as a slice of this
// process's mapping.
func (a *Allocator) Payload(ref Ref) []byte {
	off, class := a.resolve(ref)
	return a.payload(off, class)
}

// RefOf recovers the Ref of an allocation from its payload slice. Unlike the
// other operations it reports a bad slice as an error.
func (a *Allocator) RefOf(payload []byte) (Ref, error) {
	off, ok := a.seg.OffsetOfSlice(payload)
	if !ok {
		return 0, fmt.Errorf("%w: slice does not alias the segment", ErrInvalidHandle)
	}
	if err := a.check(uint64(off)); err != nil {
		return 0, err
	}
	return off, nil
}

// resolve validates ref and returns its chunk offset and class. Any problem
// is fatal.
func (a *Allocator) resolve(ref Ref) (uint64, int) {
	if err := a.check(uint64(ref)); err != nil {
		a.fatal(err)
	}
	off := chunk.FromPayload(uint64(ref))
	return off, a.space.Class(off)
}

// check reports why ref is not the payload of a live allocation, or nil.
func (a *Allocator) check(ref uint64) error {
	start := uint64(a.seg.DataStart()) + format.ChunkHeaderSize
	end := uint64(a.seg.DataEnd())
	if ref < start || ref >= end {
		return fmt.Errorf("%w: ref 0x%X outside data area", ErrInvalidHandle, ref)
	}
	off := chunk.FromPayload(ref)
	if !format.Aligned(off, a.minBits) || !a.space.Valid(off) {
		return fmt.Errorf("%w: ref 0x%X is not a chunk payload", ErrInvalidHandle, ref)
	}
	if tag := a.space.Tag(off); tag != format.TagAllocated {
		return fmt.Errorf("%w: ref 0x%X has tag 0x%02X", ErrInvalidHandle, ref, tag)
	}
	class := a.space.Class(off)
	switch {
	case class < a.minBits || class > a.maxBits:
		return corruptf(off, "class %d outside [%d, %d]", class, a.minBits, a.maxBits)
	case !format.Aligned(off, class):
		return corruptf(off, "class %d chunk misaligned", class)
	case off+format.ClassSize(class) > end:
		return corruptf(off, "class %d chunk overruns data area", class)
	}
	return nil
}
