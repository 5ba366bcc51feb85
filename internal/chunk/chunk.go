// Package chunk reads and writes chunk headers and the intrusive free lists
// threaded through free chunks. Everything is addressed by segment offset;
// nothing here holds a pointer into the mapping.
//
// The package does no locking. Callers hold the segment lock around every
// mutation.
package chunk

import "github.com/joshuapare/shmseg/internal/format"

// Space is the mapped segment seen as a flat byte array. Offsets index it.
type Space []byte

// Class returns the size class recorded in the header at off.
func (s Space) Class(off uint64) int {
	return int(format.ReadU16(s, int(off)+format.ChunkClassOffset))
}

// Tag returns the state tag recorded in the header at off.
func (s Space) Tag(off uint64) uint8 {
	return format.ReadU8(s, int(off)+format.ChunkTagOffset)
}

// Valid reports whether off carries a chunk magic.
func (s Space) Valid(off uint64) bool {
	return format.ReadU32(s, int(off)+format.ChunkMagicOffset) == format.ChunkMagic
}

// IsFree reports whether the chunk at off is a free chunk of the given class.
func (s Space) IsFree(off uint64, class int) bool {
	return s.Valid(off) && s.Tag(off) == format.TagFree && s.Class(off) == class
}

// SetFree writes a free header of the given class at off. Links are left
// for the list operations to fill in.
func (s Space) SetFree(off uint64, class int) {
	s.setHeader(off, class, format.TagFree)
}

// SetAllocated writes an allocated header of the given class at off.
func (s Space) SetAllocated(off uint64, class int) {
	s.setHeader(off, class, format.TagAllocated)
}

// SetClass rewrites only the class of the chunk at off.
func (s Space) SetClass(off uint64, class int) {
	format.PutU16(s, int(off)+format.ChunkClassOffset, uint16(class))
}

func (s Space) setHeader(off uint64, class int, tag uint8) {
	o := int(off)
	format.PutU16(s, o+format.ChunkClassOffset, uint16(class))
	format.PutU8(s, o+format.ChunkTagOffset, tag)
	format.PutU8(s, o+format.ChunkTagOffset+1, 0)
	format.PutU32(s, o+format.ChunkMagicOffset, format.ChunkMagic)
}

// Payload returns the offset of the first payload byte of the chunk at off.
func Payload(off uint64) uint64 {
	return off + format.ChunkHeaderSize
}

// FromPayload returns the chunk offset owning the payload at ref.
func FromPayload(ref uint64) uint64 {
	return ref - format.ChunkHeaderSize
}

// Invalidate erases the magic of the header at off. Used when a header ends
// up inside a larger chunk after a merge.
func (s Space) Invalidate(off uint64) {
	format.PutU32(s, int(off)+format.ChunkMagicOffset, 0)
}
