package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStats_Snapshot tests the counters of a segment with a few allocations.
func TestStats_Snapshot(t *testing.T) {
	a, _ := newTestAllocator(t, 8192, 12)

	st := a.Stats()
	require.Equal(t, uint64(8192), st.Usable)
	require.Equal(t, uint64(8192), st.FreeBytes())
	require.Len(t, st.Classes, 7)
	require.Equal(t, 6, st.Classes[0].Class)
	require.Equal(t, uint64(64), st.Classes[0].Size)
	require.Equal(t, uint64(2), st.Classes[6].Free)
	require.Equal(t, 1, st.Attached)

	ref, _, err := a.TryAlloc(100)
	require.NoError(t, err)
	_, _, err = a.TryAlloc(1000)
	require.NoError(t, err)
	a.Free(ref)

	st = a.Stats()
	assert.Equal(t, uint64(1024), st.Used)
	assert.Equal(t, st.Used, st.ActiveBytes())
	assert.Equal(t, st.Usable, st.FreeBytes()+st.ActiveBytes())
	assert.Equal(t, int64(2), st.Ops.Allocs)
	assert.Equal(t, int64(1), st.Ops.Frees)
	assert.Positive(t, st.Lock.Acquired)
}
