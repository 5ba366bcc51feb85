// Package format defines the binary layout shared by every process that
// attaches a segment: the segment header at offset 0 and the chunk header at
// the front of every block. All multi-byte fields are little-endian.
//
// This layout is the only on-memory contract between processes. Changing any
// offset here requires bumping LayoutVersion.
package format

var (
	// SegmentMagic is the eight-byte signature at the start of a formatted segment.
	// Layout:
	//   0x00  'S' 'H' 'M' 'S' 'E' 'G' 0x00 0x01
	SegmentMagic = []byte{'S', 'H', 'M', 'S', 'E', 'G', 0x00, 0x01}
)

const (
	// LayoutVersion is bumped whenever the header or chunk layout changes.
	LayoutVersion = 1

	// ClassSlots is the number of size classes the header has room for.
	// Classes 0..ClassSlots-1 are addressable, so MaxBits is at most 39 (512 GiB).
	ClassSlots = 40

	// MinClassLimit is the smallest MinBits that leaves room for a free chunk.
	MinClassLimit = 5

	// MaxClassLimit is the largest MaxBits the header can describe.
	MaxClassLimit = ClassSlots - 1

	// DefaultMinBits is the default smallest class (64 bytes).
	DefaultMinBits = 6

	// DefaultMaxBits is the default largest class (2 GiB).
	DefaultMaxBits = 31

	// DataStart is the offset of the first chunk. The header occupies the
	// first page; the rest of that page is never handed out.
	DataStart = 0x1000

	// PageSize is the alignment of DataStart.
	PageSize = 0x1000
)

// Segment header field offsets.
const (
	SegMagicOffset       = 0x00 // 8
	SegMagicSize         = 8
	SegVersionOffset     = 0x08 // 4
	SegFlagsOffset       = 0x0C // 4
	SegSizeOffset        = 0x10 // 8: total segment size
	SegUsageOffset       = 0x18 // 8: bytes held by allocated chunks
	SegBufferSizeOffset  = 0x20 // 8: reserved budget for the cache layer
	SegUsableOffset      = 0x28 // 8: bytes covered by chunks
	SegLockOffset        = 0x30 // 4: shmlock word
	SegAttachOffset      = 0x34 // 4: number of attached handles
	SegMinBitsOffset     = 0x38 // 1
	SegMaxBitsOffset     = 0x39 // 1
	SegFreeListsOffset   = 0x40 // ClassSlots * ListNodeSize
	SegNumActiveOffset   = SegFreeListsOffset + ClassSlots*ListNodeSize
	SegNumFreeOffset     = SegNumActiveOffset + ClassSlots*CounterSize
	SegmentHeaderSize    = SegNumFreeOffset + ClassSlots*CounterSize
	ListNodeSize         = 16
	CounterSize          = 8
	SegFlagHugePages     = 0x1
	segmentHeaderMaxSize = DataStart
)

// Chunk header field offsets.
//
// Chunk header layout (little-endian):
//
//	Offset  Size  Description
//	0x00    2     Size class c; the chunk spans 2^c bytes.
//	0x02    1     State tag (TagFree or TagAllocated).
//	0x03    1     Reserved, zero.
//	0x04    4     ChunkMagic.
//	0x08    8     Free chunks only: next offset in FreeList[c].
//	0x10    8     Free chunks only: prev offset in FreeList[c].
//
// Allocated chunks hand out everything from 0x08 onwards as payload.
const (
	ChunkClassOffset = 0x00
	ChunkTagOffset   = 0x02
	ChunkMagicOffset = 0x04
	ChunkNextOffset  = 0x08
	ChunkPrevOffset  = 0x10

	// ChunkHeaderSize is the per-allocation overhead.
	ChunkHeaderSize = 0x08

	// FreeChunkSize is the number of bytes a free chunk needs for its links.
	FreeChunkSize = 0x18

	// ChunkMagic guards against handles that do not point at a chunk.
	ChunkMagic uint32 = 0x4B48434D
)

// Chunk state tags.
const (
	TagFree      uint8 = 0x01
	TagAllocated uint8 = 0x02
)

// The header must fit in the page reserved for it.
var _ = [segmentHeaderMaxSize - SegmentHeaderSize]struct{}{}

// FreeListHead returns the offset of the sentinel node for FreeList[class].
func FreeListHead(class int) uint64 {
	return uint64(SegFreeListsOffset + class*ListNodeSize)
}

// NumActiveOffset returns the header offset of active[class].
func NumActiveOffset(class int) int {
	return SegNumActiveOffset + class*CounterSize
}

// NumFreeOffset returns the header offset of free[class].
func NumFreeOffset(class int) int {
	return SegNumFreeOffset + class*CounterSize
}
