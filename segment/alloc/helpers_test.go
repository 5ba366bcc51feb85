package alloc

import (
	"encoding/binary"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/shmseg/internal/chunk"
	"github.com/joshuapare/shmseg/internal/claimlog"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/segment"
	"github.com/joshuapare/shmseg/segment/verify"
)

// ============================================================================
// Segment Creation Utilities
// ============================================================================

// testConfig sizes a segment whose data area is dataSize bytes, with classes
// from 64 bytes to 2^maxBits.
func testConfig(dataSize uint64, maxBits int) segment.Config {
	return segment.Config{
		SegmentSize: format.DataStart + dataSize,
		MinBits:     format.DefaultMinBits,
		MaxBits:     maxBits,
	}
}

// newTestSegment creates an anonymous segment detached on cleanup.
func newTestSegment(t testing.TB, dataSize uint64, maxBits int) *segment.Segment {
	t.Helper()

	seg, err := segment.New(testConfig(dataSize, maxBits))
	require.NoError(t, err, "failed to create test segment")
	t.Cleanup(func() { _ = seg.Detach() })
	return seg
}

// newTestAllocator creates an allocator over a fresh anonymous segment.
// Fatal reports are recorded instead of logged.
func newTestAllocator(t testing.TB, dataSize uint64, maxBits int) (*Allocator, *reportLog) {
	t.Helper()

	reports := &reportLog{}
	return New(newTestSegment(t, dataSize, maxBits), WithReporter(reports)), reports
}

// newFileSegment creates a file-backed segment in a temp dir and returns its
// path. The creating attachment is detached on cleanup.
func newFileSegment(t testing.TB, dataSize uint64, maxBits int) (*segment.Segment, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.shm")
	seg, err := segment.Create(path, testConfig(dataSize, maxBits))
	require.NoError(t, err, "failed to create file-backed segment")
	t.Cleanup(func() { _ = seg.Detach() })
	return seg, path
}

// ============================================================================
// Inspection Utilities
// ============================================================================

// freeList returns the chunk offsets on FreeList[class] in list order.
func freeList(a *Allocator, class int) []uint64 {
	a.seg.Lock()
	defer a.seg.Unlock()

	var offs []uint64
	a.space.Each(a.seg.FreeList(class), 1<<20, func(off uint64) bool {
		offs = append(offs, off)
		return true
	})
	return offs
}

// freeShape returns every free list as a sorted offset set, keyed by class.
func freeShape(a *Allocator) map[int][]uint64 {
	shape := make(map[int][]uint64)
	for c := a.minBits; c <= a.maxBits; c++ {
		offs := freeList(a, c)
		if len(offs) > 0 {
			slices.Sort(offs)
			shape[c] = offs
		}
	}
	return shape
}

// chunkAt returns the chunk offset and class behind ref.
func chunkAt(a *Allocator, ref Ref) (uint64, int) {
	off := chunk.FromPayload(uint64(ref))
	return off, a.space.Class(off)
}

// requireInvariants runs every segment check under the lock.
func requireInvariants(t testing.TB, a *Allocator) {
	t.Helper()
	require.NoError(t, verify.Segment(a.seg), "segment invariants violated")
}

// ============================================================================
// Traffic Generators
// ============================================================================

// live is an allocation made by a traffic generator.
type live struct {
	ref   Ref
	size  int
	stamp uint64
}

// owner is one traffic source. Its stamps carry its id in the top 16 bits
// and a counter below, so no two allocations anywhere share a stamp. With a
// claim log set, every chunk it holds is recorded as a claim.
type owner struct {
	id     int
	claims *claimlog.Log
	next   uint64
}

func newOwner(id int, claims *claimlog.Log) *owner {
	return &owner{id: id, claims: claims}
}

func (o *owner) nextStamp() uint64 {
	o.next++
	return uint64(o.id)<<48 | o.next
}

func (o *owner) acquire(a *Allocator, ref Ref) {
	if o.claims != nil {
		off, class := chunkAt(a, ref)
		o.claims.Acquire(off, off+format.ClassSize(class))
	}
}

func (o *owner) unclaim(t testing.TB, ref Ref) {
	t.Helper()
	if o.claims != nil {
		require.NoError(t, o.claims.Release(chunk.FromPayload(uint64(ref))))
	}
}

// release checks h's stamp, ends its claim and frees it.
func (o *owner) release(t testing.TB, a *Allocator, h live) {
	t.Helper()
	requireStamped(t, a.Payload(h.ref)[:h.size], h.stamp)
	o.unclaim(t, h.ref)
	a.Free(h.ref)
}

// randomTraffic runs ops random allocations, frees and resizes as owner 0
// with no claim log and returns what is still allocated.
func randomTraffic(t testing.TB, a *Allocator, rng *rand.Rand, ops, maxSize int, resize bool) []live {
	t.Helper()
	return newOwner(0, nil).traffic(t, a, rng, ops, maxSize, resize)
}

// traffic runs ops random allocations, frees and resizes and returns what is
// still allocated. Sizes are drawn up to maxSize. Payloads are stamped and
// the stamp is checked before a chunk is resized or released.
func (o *owner) traffic(t testing.TB, a *Allocator, rng *rand.Rand, ops, maxSize int, resize bool) []live {
	t.Helper()

	var held []live
	for range ops {
		switch r := rng.IntN(10); {
		case r < 5 || len(held) == 0:
			size := rng.IntN(maxSize)
			ref, buf, err := a.TryAlloc(size)
			if err != nil {
				require.ErrorIs(t, err, ErrOutOfMemory)
				continue
			}
			o.acquire(a, ref)
			stamp := o.nextStamp()
			writeStamp(buf[:size], stamp)
			held = append(held, live{ref: ref, size: size, stamp: stamp})

		case r < 8 || !resize:
			k := rng.IntN(len(held))
			o.release(t, a, held[k])
			held = slices.Delete(held, k, k+1)

		default:
			k := rng.IntN(len(held))
			h := held[k]
			requireStamped(t, a.Payload(h.ref)[:h.size], h.stamp)
			size := rng.IntN(maxSize)
			o.unclaim(t, h.ref)
			ref, buf, err := a.TryResize(h.ref, size)
			if err != nil {
				require.ErrorIs(t, err, ErrOutOfMemory)
				o.acquire(a, h.ref)
				continue
			}
			o.acquire(a, ref)
			requireStamped(t, buf[:min(size, h.size)], h.stamp)
			writeStamp(buf[:size], h.stamp)
			held[k] = live{ref: ref, size: size, stamp: h.stamp}
		}
	}
	return held
}

// writeStamp fills b with repeated little-endian copies of stamp.
func writeStamp(b []byte, stamp uint64) {
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], stamp)
	for i := range b {
		b[i] = w[i%8]
	}
}

// stampMismatch returns the index of the first byte of b that does not match
// stamp, or -1.
func stampMismatch(b []byte, stamp uint64) int {
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], stamp)
	for i, got := range b {
		if got != w[i%8] {
			return i
		}
	}
	return -1
}

func requireStamped(t testing.TB, b []byte, stamp uint64) {
	t.Helper()
	if i := stampMismatch(b, stamp); i >= 0 {
		require.Failf(t, "payload overwritten", "byte %d of stamp 0x%X: got 0x%02X", i, stamp, b[i])
	}
}

// ============================================================================
// Reporting
// ============================================================================

// reportLog records fatal reports.
type reportLog struct {
	mu   sync.Mutex
	errs []error
}

func (r *reportLog) Report(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *reportLog) last() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}
