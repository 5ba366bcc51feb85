package alloc

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTryResize_SameClass tests that a resize within the class is a no-op.
func TestTryResize_SameClass(t *testing.T) {
	a, _ := newTestAllocator(t, 4096, 12)
	ref, _, err := a.TryAlloc(100)
	require.NoError(t, err)
	before := freeShape(a)
	used := a.Stats().Used

	for _, size := range []int{57, 100, 120} {
		got, buf, err := a.TryResize(ref, size)
		require.NoError(t, err)
		require.Equal(t, ref, got, "size %d", size)
		require.Len(t, buf, 120)
	}
	require.Equal(t, before, freeShape(a))
	require.Equal(t, used, a.Stats().Used)
}

// TestTryResize_Shrink tests that shrinking a 128-byte chunk to a 40-byte
// request keeps the ref and frees the 64-byte tail without merging it.
func TestTryResize_Shrink(t *testing.T) {
	a, _ := newTestAllocator(t, 4096, 12)
	ref, buf, err := a.TryAlloc(100)
	require.NoError(t, err)
	copy(buf, "keep me")
	off, _ := chunkAt(a, ref)

	got, small, err := a.TryResize(ref, 40)
	require.NoError(t, err)
	require.Equal(t, ref, got)
	require.Len(t, small, 56)
	require.Equal(t, "keep me", string(small[:7]))
	require.Equal(t, 56, a.Size(ref))

	require.Equal(t, []uint64{off + 64}, freeList(a, 6))
	st := a.Stats()
	assert.Equal(t, uint64(64), st.Used)
	assert.Equal(t, uint64(1), st.Classes[0].Active)
	assert.Equal(t, int64(1), st.Ops.Shrinks)
	requireInvariants(t, a)
}

// TestTryResize_ShrinkCarvesTail tests that a large shrink leaves one free
// chunk per class between the new and the old size.
func TestTryResize_ShrinkCarvesTail(t *testing.T) {
	a, _ := newTestAllocator(t, 4096, 12)
	ref, _, err := a.TryAlloc(4000)
	require.NoError(t, err)

	_, _, err = a.TryResize(ref, 10)
	require.NoError(t, err)

	for c := 6; c < 12; c++ {
		require.Equal(t, []uint64{0x1000 + uint64(1)<<c}, freeList(a, c), "class %d", c)
	}
	requireInvariants(t, a)

	// Freeing the head merges the whole tail back.
	a.Free(ref)
	require.Equal(t, []uint64{0x1000}, freeList(a, 12))
	requireInvariants(t, a)
}

// TestTryResize_Grow tests that growing a 64-byte allocation to 1024 bytes
// moves it, copies the payload and frees the old chunk.
func TestTryResize_Grow(t *testing.T) {
	a, _ := newTestAllocator(t, 4096, 12)
	ref, buf, err := a.TryAlloc(10)
	require.NoError(t, err)
	pattern := bytes.Repeat([]byte{0xAB}, len(buf))
	copy(buf, pattern)

	got, big, err := a.TryResize(ref, 1024)
	require.NoError(t, err)
	require.NotEqual(t, ref, got)
	require.Equal(t, Ref(0x1808), got)
	require.Len(t, big, 2040)
	require.Equal(t, pattern, big[:len(pattern)])

	// The old chunk merged all the way back up to its 2048-byte parent.
	require.Equal(t, []uint64{0x1000}, freeList(a, 11))
	require.Empty(t, freeList(a, 6))
	require.Equal(t, int64(1), a.Stats().Ops.Grows)
	requireInvariants(t, a)
}

// TestTryResize_GrowFailureKeepsOriginal tests that a failed grow leaves the
// original allocation untouched.
func TestTryResize_GrowFailureKeepsOriginal(t *testing.T) {
	a, _ := newTestAllocator(t, 4096, 12)
	ref1, buf1, err := a.TryAlloc(2000)
	require.NoError(t, err)
	_, _, err = a.TryAlloc(2000)
	require.NoError(t, err)
	copy(buf1, "original")
	before := freeShape(a)

	_, _, err = a.TryResize(ref1, 3000)
	require.ErrorIs(t, err, ErrOutOfMemory)

	require.Equal(t, "original", string(a.Payload(ref1)[:8]))
	require.Equal(t, 2040, a.Size(ref1))
	require.Equal(t, before, freeShape(a))
	requireInvariants(t, a)
}

// TestTryResize_Oversize tests that an oversize resize fails without touching
// the allocation.
func TestTryResize_Oversize(t *testing.T) {
	a, reports := newTestAllocator(t, 4096, 12)
	ref, _, err := a.TryAlloc(100)
	require.NoError(t, err)

	_, _, err = a.TryResize(ref, 5000)
	require.ErrorIs(t, err, ErrOversize)
	require.Equal(t, 120, a.Size(ref))

	require.Panics(t, func() { a.Resize(ref, 5000) })
	require.ErrorIs(t, reports.last(), ErrOversize)
}

// TestTryResize_Freed tests that resizing a freed ref is fatal.
func TestTryResize_Freed(t *testing.T) {
	a, reports := newTestAllocator(t, 4096, 12)
	ref, _ := a.Alloc(100)
	a.Free(ref)

	require.Panics(t, func() { _, _, _ = a.TryResize(ref, 10) })
	require.ErrorIs(t, reports.last(), ErrInvalidHandle)
}

// TestTryResize_Idempotent tests that repeating a resize to the same size is
// a no-op after the first call.
func TestTryResize_Idempotent(t *testing.T) {
	a, _ := newTestAllocator(t, 64*1024, 13)
	rng := rand.New(rand.NewPCG(10, 11))

	for range 200 {
		ref, _, err := a.TryAlloc(rng.IntN(3000))
		require.NoError(t, err)
		size := rng.IntN(3000)

		ref1, _, err := a.TryResize(ref, size)
		require.NoError(t, err)
		shape := freeShape(a)
		ref2, _, err := a.TryResize(ref1, size)
		require.NoError(t, err)

		require.Equal(t, ref1, ref2)
		require.Equal(t, shape, freeShape(a))
		a.Free(ref2)
	}
	requireInvariants(t, a)
}
