package segment

import (
	"unsafe"

	"github.com/joshuapare/shmseg/internal/buf"
)

// Offset is a position relative to the start of the segment. It is the only
// form of address that means the same thing in every attached process.
type Offset uint64

// Base returns this process's base address of the mapping. It differs
// between attachments and must never be stored in the segment.
func (s *Segment) Base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(s.data)))
}

// Pointer converts off to a pointer valid in this process. It returns nil
// when off lies outside the segment.
func (s *Segment) Pointer(off Offset) unsafe.Pointer {
	if !buf.Has(s.data, uint64(off), 1) {
		return nil
	}
	return unsafe.Pointer(&s.data[off])
}

// OffsetOf converts a pointer into this process's mapping back to an offset.
func (s *Segment) OffsetOf(p unsafe.Pointer) (Offset, bool) {
	base := s.Base()
	addr := uintptr(p)
	if p == nil || addr < base || addr-base >= uintptr(len(s.data)) {
		return 0, false
	}
	return Offset(addr - base), true
}

// Slice returns the n bytes at off as a slice of this process's mapping.
func (s *Segment) Slice(off Offset, n uint64) ([]byte, bool) {
	b, ok := buf.Slice(s.data, uint64(off), n)
	if !ok {
		return nil, false
	}
	return b[:n:n], true
}

// OffsetOfSlice returns the offset of b's first byte. b must alias this
// process's mapping.
func (s *Segment) OffsetOfSlice(b []byte) (Offset, bool) {
	if cap(b) == 0 {
		return 0, false
	}
	return s.OffsetOf(unsafe.Pointer(unsafe.SliceData(b)))
}
