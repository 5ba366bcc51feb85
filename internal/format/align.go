package format

import "math/bits"

// Size class arithmetic. A class c denotes a block of 2^c bytes.

// ClassSize returns 2^class.
func ClassSize(class int) uint64 {
	return uint64(1) << uint(class)
}

// ClassFor returns the smallest class whose block holds size payload bytes
// plus the chunk header. The result is not clamped to any class bounds.
//
// Example:
//
//	ClassFor(1)   = 4  (16 bytes)
//	ClassFor(56)  = 6  (64 bytes)
//	ClassFor(57)  = 7  (128 bytes)
//	ClassFor(100) = 7  (128 bytes)
func ClassFor(size uint64) int {
	return bits.Len64(size + ChunkHeaderSize - 1)
}

// LowestClass returns the class of the largest block that may start at off,
// i.e. the index of the lowest set bit. Offset 0 reports 64.
func LowestClass(off uint64) int {
	return bits.TrailingZeros64(off)
}

// Buddy returns the offset of the buddy of the class-c chunk at off.
func Buddy(off uint64, class int) uint64 {
	return off ^ ClassSize(class)
}

// Aligned reports whether off is a multiple of 2^class.
func Aligned(off uint64, class int) bool {
	return off&(ClassSize(class)-1) == 0
}

// AlignDown clears the low class bits of off.
func AlignDown(off uint64, class int) uint64 {
	return off &^ (ClassSize(class) - 1)
}
