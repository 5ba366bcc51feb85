// Package buf contains overflow-safe range checks for segment offsets.
package buf

import "math/bits"

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow uint64.
func AddOverflowSafe(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// Within reports whether [off, off+n) lies inside [0, size).
func Within(size, off, n uint64) bool {
	end, ok := AddOverflowSafe(off, n)
	return ok && end <= size
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n uint64) ([]byte, bool) {
	if !Within(uint64(len(b)), off, n) {
		return nil, false
	}
	return b[off : off+n], true
}

// Has reports whether b[off:off+n] is within bounds.
func Has(b []byte, off, n uint64) bool {
	return Within(uint64(len(b)), off, n)
}
