package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/shmseg/internal/format"
)

// newSpace returns a zeroed space with the header page plus n bytes of data.
func newSpace(n int) Space {
	return make(Space, format.DataStart+n)
}

func TestHeaderRoundTrip(t *testing.T) {
	s := newSpace(4096)

	s.SetFree(0x1000, 12)
	require.True(t, s.Valid(0x1000))
	require.True(t, s.IsFree(0x1000, 12))
	require.False(t, s.IsFree(0x1000, 11))
	require.Equal(t, format.TagFree, s.Tag(0x1000))

	s.SetAllocated(0x1000, 12)
	require.Equal(t, format.TagAllocated, s.Tag(0x1000))
	require.Equal(t, 12, s.Class(0x1000))
	require.False(t, s.IsFree(0x1000, 12))

	s.SetClass(0x1000, 7)
	require.Equal(t, 7, s.Class(0x1000))
	require.Equal(t, format.TagAllocated, s.Tag(0x1000))

	require.False(t, s.Valid(0x1800), "untouched bytes carry no magic")
}

func TestPayloadOffsets(t *testing.T) {
	require.Equal(t, uint64(0x1008), Payload(0x1000))
	require.Equal(t, uint64(0x1000), FromPayload(0x1008))
}

func TestListOperations(t *testing.T) {
	s := newSpace(4096)
	head := format.FreeListHead(6)
	s.InitList(head)
	require.True(t, s.Empty(head))

	offs := []uint64{0x1000, 0x1040, 0x1080}
	for _, off := range offs {
		s.SetFree(off, 6)
	}

	s.PushFront(head, offs[0])
	s.PushFront(head, offs[1])
	s.PushBack(head, offs[2])
	require.False(t, s.Empty(head))

	var got []uint64
	require.True(t, s.Each(head, 16, func(off uint64) bool {
		require.True(t, s.Linked(off))
		got = append(got, off)
		return true
	}))
	require.Equal(t, []uint64{0x1040, 0x1000, 0x1080}, got)

	s.Remove(0x1000)
	front, ok := s.Front(head)
	require.True(t, ok)
	require.Equal(t, uint64(0x1040), front)

	off, ok := s.PopFront(head)
	require.True(t, ok)
	require.Equal(t, uint64(0x1040), off)

	off, ok = s.PopFront(head)
	require.True(t, ok)
	require.Equal(t, uint64(0x1080), off)

	_, ok = s.PopFront(head)
	require.False(t, ok)
	require.True(t, s.Empty(head))
}

func TestEachStopsOnCycleLimit(t *testing.T) {
	s := newSpace(4096)
	head := format.FreeListHead(6)
	s.InitList(head)
	for i := range 4 {
		off := uint64(0x1000 + i*64)
		s.SetFree(off, 6)
		s.PushBack(head, off)
	}

	visited := 0
	require.False(t, s.Each(head, 2, func(uint64) bool {
		visited++
		return true
	}))
	require.Equal(t, 2, visited)

	visited = 0
	require.True(t, s.Each(head, 16, func(uint64) bool {
		visited++
		return visited < 3
	}))
	require.Equal(t, 3, visited)
}

func TestInvalidate(t *testing.T) {
	s := newSpace(4096)
	s.SetFree(0x1040, 6)
	s.Invalidate(0x1040)
	require.False(t, s.Valid(0x1040))
	require.False(t, s.IsFree(0x1040, 6))
}
