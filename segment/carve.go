package segment

import (
	"github.com/joshuapare/shmseg/internal/chunk"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/internal/mmfile"
	"github.com/joshuapare/shmseg/internal/shmlock"
)

// initialize formats a freshly mapped region: header fields, empty free
// lists, then the initial cover of free chunks. The magic is written last so
// a concurrent Attach never sees a half-formatted header.
func initialize(region *mmfile.Region, cfg Config) (*Segment, error) {
	data := chunk.Space(region.Bytes())
	clear(data[:format.DataStart])

	lock, err := shmlock.At(data, format.SegLockOffset)
	if err != nil {
		return nil, err
	}
	lock.Reset()

	var flags uint32
	if cfg.HugePages {
		flags |= format.SegFlagHugePages
	}
	if cfg.RemoveOnLastDetach {
		flags |= segFlagRemoveOnDetach
	}
	if cfg.Persistent {
		flags |= segFlagPersistent
	}
	format.PutU32(data, format.SegVersionOffset, format.LayoutVersion)
	format.PutU32(data, format.SegFlagsOffset, flags)
	format.PutU64(data, format.SegSizeOffset, cfg.SegmentSize)
	format.PutU64(data, format.SegBufferSizeOffset, cfg.BufferSize)
	format.PutU8(data, format.SegMinBitsOffset, uint8(cfg.MinBits))
	format.PutU8(data, format.SegMaxBitsOffset, uint8(cfg.MaxBits))
	format.PutU32(data, format.SegAttachOffset, 1)

	s := &Segment{
		region:  region,
		data:    data,
		lock:    lock,
		size:    cfg.SegmentSize,
		minBits: cfg.MinBits,
		maxBits: cfg.MaxBits,
	}
	for c := range format.ClassSlots {
		data.InitList(format.FreeListHead(c))
	}
	format.PutU64(data, format.SegUsableOffset, s.Carve(format.DataStart, cfg.SegmentSize))

	copy(data[:format.SegMagicSize], format.SegmentMagic)
	return s, nil
}

// Carve covers [start, end) with free chunks, largest legal class first at
// each offset, pushes them onto their free lists and returns the number of
// bytes covered. A tail shorter than the smallest class is left out. Adjacent
// free buddies are not merged. Callers hold the lock once the segment is
// shared.
func (s *Segment) Carve(start, end uint64) uint64 {
	minSize := format.ClassSize(s.minBits)
	off := start
	for end-off >= minSize {
		class := min(format.LowestClass(off), s.maxBits)
		for off+format.ClassSize(class) > end {
			class--
		}
		if class < s.minBits {
			break
		}
		s.data.SetFree(off, class)
		s.data.PushBack(format.FreeListHead(class), off)
		s.AdjustFree(class, 1)
		off += format.ClassSize(class)
	}
	return off - start
}
