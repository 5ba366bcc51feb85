package format

import "encoding/binary"

// Binary encoding utilities for little-endian integers.
//
// Every process reads and writes the shared header and chunk headers through
// these helpers, so the byte order is fixed regardless of host endianness.

// PutU8 writes a byte at the specified offset.
func PutU8(b []byte, off int, v uint8) {
	b[off] = v
}

// PutU16 writes a uint16 value to the buffer at the specified offset in little-endian format.
func PutU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

// PutU32 writes a uint32 value to the buffer at the specified offset in little-endian format.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// PutU64 writes a uint64 value to the buffer at the specified offset in little-endian format.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU8 reads the byte at the specified offset.
func ReadU8(b []byte, off int) uint8 {
	return b[off]
}

// ReadU16 reads a uint16 value from the buffer at the specified offset in little-endian format.
func ReadU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// ReadU32 reads a uint32 value from the buffer at the specified offset in little-endian format.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// ReadU64 reads a uint64 value from the buffer at the specified offset in little-endian format.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

// AddU64 adds delta to the uint64 at off and returns the new value.
func AddU64(b []byte, off int, delta int64) uint64 {
	v := uint64(int64(ReadU64(b, off)) + delta)
	PutU64(b, off, v)
	return v
}
