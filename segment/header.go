package segment

import (
	"github.com/joshuapare/shmseg/internal/chunk"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/internal/shmlock"
)

// Immutable header fields. Safe without the lock.

// Size returns the total segment size in bytes.
func (s *Segment) Size() uint64 { return s.size }

// MinBits returns the smallest size class.
func (s *Segment) MinBits() int { return s.minBits }

// MaxBits returns the largest size class.
func (s *Segment) MaxBits() int { return s.maxBits }

// Usable returns the number of bytes covered by chunks.
func (s *Segment) Usable() uint64 { return format.ReadU64(s.data, format.SegUsableOffset) }

// BufferSize returns the byte budget reserved for the cache layer.
func (s *Segment) BufferSize() uint64 { return format.ReadU64(s.data, format.SegBufferSizeOffset) }

// HugePages reports whether the creator asked for large-page backing.
func (s *Segment) HugePages() bool {
	return format.ReadU32(s.data, format.SegFlagsOffset)&format.SegFlagHugePages != 0
}

// DataStart returns the offset of the first chunk.
func (s *Segment) DataStart() Offset { return format.DataStart }

// DataEnd returns the offset one past the last chunk.
func (s *Segment) DataEnd() Offset { return Offset(format.DataStart + s.Usable()) }

// Path returns the backing file, or "" for anonymous segments.
func (s *Segment) Path() string {
	if s.region == nil {
		return ""
	}
	return s.region.Path()
}

// Space exposes the mapping for chunk and free-list manipulation.
func (s *Segment) Space() chunk.Space { return s.data }

// Locking.

// Lock acquires the segment-wide lock shared by all attachments.
func (s *Segment) Lock() { s.lock.Lock() }

// Unlock releases the segment-wide lock.
func (s *Segment) Unlock() { s.lock.Unlock() }

// LockStats returns this process's lock counters.
func (s *Segment) LockStats() shmlock.Stats { return s.lock.Stats() }

// Mutable header fields. Callers hold the lock.

// Used returns the bytes held by allocated chunks.
func (s *Segment) Used() uint64 { return format.ReadU64(s.data, format.SegUsageOffset) }

// AdjustUsed adds delta to the used byte count.
func (s *Segment) AdjustUsed(delta int64) {
	format.AddU64(s.data, format.SegUsageOffset, delta)
}

// NumActive returns the number of allocated chunks of class c.
func (s *Segment) NumActive(c int) uint64 {
	return format.ReadU64(s.data, format.NumActiveOffset(c))
}

// NumFree returns the number of free chunks of class c.
func (s *Segment) NumFree(c int) uint64 {
	return format.ReadU64(s.data, format.NumFreeOffset(c))
}

// AdjustActive adds delta to active[c].
func (s *Segment) AdjustActive(c int, delta int64) {
	format.AddU64(s.data, format.NumActiveOffset(c), delta)
}

// AdjustFree adds delta to free[c].
func (s *Segment) AdjustFree(c int, delta int64) {
	format.AddU64(s.data, format.NumFreeOffset(c), delta)
}

// FreeList returns the sentinel offset of FreeList[c].
func (s *Segment) FreeList(c int) uint64 { return format.FreeListHead(c) }

// Attached returns the number of live attachments.
func (s *Segment) Attached() int {
	return int(format.ReadU32(s.data, format.SegAttachOffset))
}

func (s *Segment) adjustAttached(delta int) int {
	n := int(format.ReadU32(s.data, format.SegAttachOffset)) + delta
	format.PutU32(s.data, format.SegAttachOffset, uint32(n))
	return n
}
