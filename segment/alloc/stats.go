package alloc

import (
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/internal/shmlock"
)

// Stats is a consistent snapshot of the segment's accounting.
type Stats struct {
	SegmentSize uint64
	Usable      uint64
	Used        uint64
	BufferSize  uint64
	MinBits     int
	MaxBits     int
	Attached    int

	// Classes holds one entry per class from MinBits to MaxBits.
	Classes []ClassStats

	// Ops and Lock count this process's activity only.
	Ops  OpStats
	Lock shmlock.Stats
}

// ClassStats are the header counters of one size class.
type ClassStats struct {
	Class  int    `json:"class"`
	Size   uint64 `json:"size"`
	Active uint64 `json:"active"`
	Free   uint64 `json:"free"`
}

// OpStats counts allocator operations performed through this Allocator.
type OpStats struct {
	Allocs     int64
	AllocFails int64
	Retries    int64
	Frees      int64
	Splits     int64
	Merges     int64
	Grows      int64
	Shrinks    int64
}

// FreeBytes returns the bytes held by free chunks.
func (s Stats) FreeBytes() uint64 {
	var n uint64
	for _, c := range s.Classes {
		n += c.Free * c.Size
	}
	return n
}

// ActiveBytes returns the bytes held by allocated chunks, computed from the
// class counters. It equals Used on a consistent segment.
func (s Stats) ActiveBytes() uint64 {
	var n uint64
	for _, c := range s.Classes {
		n += c.Active * c.Size
	}
	return n
}

// Stats reads the segment counters under the lock.
func (a *Allocator) Stats() Stats {
	a.seg.Lock()
	st := Stats{
		SegmentSize: a.seg.Size(),
		Usable:      a.seg.Usable(),
		Used:        a.seg.Used(),
		BufferSize:  a.seg.BufferSize(),
		MinBits:     a.minBits,
		MaxBits:     a.maxBits,
		Attached:    a.seg.Attached(),
		Classes:     make([]ClassStats, 0, a.maxBits-a.minBits+1),
	}
	for c := a.minBits; c <= a.maxBits; c++ {
		st.Classes = append(st.Classes, ClassStats{
			Class:  c,
			Size:   format.ClassSize(c),
			Active: a.seg.NumActive(c),
			Free:   a.seg.NumFree(c),
		})
	}
	a.seg.Unlock()

	st.Ops = OpStats{
		Allocs:     a.ops.allocs.Load(),
		AllocFails: a.ops.allocFails.Load(),
		Retries:    a.ops.retries.Load(),
		Frees:      a.ops.frees.Load(),
		Splits:     a.ops.splits.Load(),
		Merges:     a.ops.merges.Load(),
		Grows:      a.ops.grows.Load(),
		Shrinks:    a.ops.shrinks.Load(),
	}
	st.Lock = a.seg.LockStats()
	return st
}
