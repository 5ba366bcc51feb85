package alloc

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/segment/verify"
)

// TestFree_RoundTripShape tests that allocating and freeing one chunk leaves
// every free list with the same set of chunks it started with.
func TestFree_RoundTripShape(t *testing.T) {
	a, _ := newTestAllocator(t, 64*1024, 12)
	rng := rand.New(rand.NewPCG(3, 4))
	randomTraffic(t, a, rng, 300, 2000, false)

	for _, size := range []int{1, 100, 500, 1500, 4000} {
		before := freeShape(a)
		ref, _, err := a.TryAlloc(size)
		if err != nil {
			require.ErrorIs(t, err, ErrOutOfMemory)
			continue
		}
		a.Free(ref)
		require.Equal(t, before, freeShape(a), "size %d", size)
	}
}

// TestFree_NoFreeBuddiesLeft tests that without shrinks, no two free buddies
// of the same class are ever left side by side.
func TestFree_NoFreeBuddiesLeft(t *testing.T) {
	a, _ := newTestAllocator(t, 128*1024, 13)
	rng := rand.New(rand.NewPCG(5, 6))

	for range 20 {
		randomTraffic(t, a, rng, 200, 3000, false)
		census, err := verify.Walk(a.seg.Space())
		require.NoError(t, err)
		require.Zero(t, census.Mergeable)
	}
}

// TestFree_AllReturnsToCarve tests that freeing everything restores the
// initial cover of the data area.
func TestFree_AllReturnsToCarve(t *testing.T) {
	a, _ := newTestAllocator(t, 64*1024, 12)
	initial := freeShape(a)
	require.Len(t, initial[12], 16)

	rng := rand.New(rand.NewPCG(8, 9))
	held := randomTraffic(t, a, rng, 2000, 2000, false)
	for _, h := range held {
		a.Free(h.ref)
	}

	require.Equal(t, initial, freeShape(a))
	requireInvariants(t, a)
}

// TestFree_StopsAtMaxBits tests that two free buddies of the largest class
// stay separate.
func TestFree_StopsAtMaxBits(t *testing.T) {
	a, _ := newTestAllocator(t, 8192, 12)

	ref1, _, err := a.TryAlloc(4000)
	require.NoError(t, err)
	ref2, _, err := a.TryAlloc(4000)
	require.NoError(t, err)
	a.Free(ref1)
	a.Free(ref2)

	require.ElementsMatch(t, []uint64{0x1000, 0x2000}, freeList(a, 12))
	requireInvariants(t, a)
}

// TestFree_StopsAtDataEnd tests that a buddy beyond the data area is never
// read.
func TestFree_StopsAtDataEnd(t *testing.T) {
	// 4096 + 2048 of data: the 2048 chunk at 0x2000 has its buddy at 0x2800,
	// past the end.
	a, _ := newTestAllocator(t, 4096+2048, 12)
	require.Equal(t, []uint64{0x2000}, freeList(a, 11))

	ref, _, err := a.TryAlloc(2000)
	require.NoError(t, err)
	require.Equal(t, Ref(0x2008), ref)
	a.Free(ref)

	require.Equal(t, []uint64{0x2000}, freeList(a, 11))
	requireInvariants(t, a)
}

// TestFree_InvalidatesMergedHeader tests that the upper half of a merge no
// longer looks like a chunk.
func TestFree_InvalidatesMergedHeader(t *testing.T) {
	a, _ := newTestAllocator(t, 256, 12)

	ref1, _, err := a.TryAlloc(100)
	require.NoError(t, err)
	ref2, _, err := a.TryAlloc(100)
	require.NoError(t, err)
	a.Free(ref1)
	a.Free(ref2)

	require.False(t, a.space.Valid(0x1080))
	require.True(t, a.space.IsFree(0x1000, 8))
}

// TestFree_InvalidHandle tests that freeing anything but a live allocation is
// reported and panics.
func TestFree_InvalidHandle(t *testing.T) {
	tests := []struct {
		name string
		ref  func(a *Allocator) Ref
	}{
		{"double free", func(a *Allocator) Ref {
			ref, _ := a.Alloc(100)
			a.Free(ref)
			return ref
		}},
		{"free chunk never allocated", func(*Allocator) Ref {
			return Ref(format.DataStart + format.ChunkHeaderSize)
		}},
		{"inside a payload", func(a *Allocator) Ref {
			ref, _ := a.Alloc(100)
			return ref + 64
		}},
		{"misaligned", func(a *Allocator) Ref {
			ref, _ := a.Alloc(100)
			return ref + 1
		}},
		{"in the header", func(*Allocator) Ref { return 64 }},
		{"past the end", func(a *Allocator) Ref { return Ref(a.seg.Size() + 8) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, reports := newTestAllocator(t, 4096, 12)
			ref := tt.ref(a)
			before := freeShape(a)

			require.Panics(t, func() { a.Free(ref) })
			require.ErrorIs(t, reports.last(), ErrInvalidHandle)
			require.Equal(t, before, freeShape(a))
			requireInvariants(t, a)
		})
	}
}

// TestSize_InvalidHandle tests that Size rejects a freed ref.
func TestSize_InvalidHandle(t *testing.T) {
	a, reports := newTestAllocator(t, 4096, 12)
	ref, _ := a.Alloc(10)
	a.Free(ref)

	require.Panics(t, func() { a.Size(ref) })
	require.ErrorIs(t, reports.last(), ErrInvalidHandle)
}
