package chunk

import "github.com/joshuapare/shmseg/internal/format"

// Free lists are circular and doubly linked. A node is a {next, prev} pair
// of offsets. The sentinel node of FreeList[c] lives in the segment header at
// format.FreeListHead(c); a chunk's node lives at chunk+ChunkNextOffset.
// Links always hold node offsets, never chunk offsets.

func nodeOf(off uint64) uint64  { return off + format.ChunkNextOffset }
func chunkOf(node uint64) uint64 { return node - format.ChunkNextOffset }

func (s Space) next(node uint64) uint64 { return format.ReadU64(s, int(node)) }
func (s Space) prev(node uint64) uint64 { return format.ReadU64(s, int(node)+8) }

func (s Space) setNext(node, v uint64) { format.PutU64(s, int(node), v) }
func (s Space) setPrev(node, v uint64) { format.PutU64(s, int(node)+8, v) }

// InitList makes the sentinel at head an empty list.
func (s Space) InitList(head uint64) {
	s.setNext(head, head)
	s.setPrev(head, head)
}

// Empty reports whether the list rooted at head has no chunks.
func (s Space) Empty(head uint64) bool {
	return s.next(head) == head
}

// insertAfter links node between at and its successor.
func (s Space) insertAfter(at, node uint64) {
	nx := s.next(at)
	s.setNext(node, nx)
	s.setPrev(node, at)
	s.setPrev(nx, node)
	s.setNext(at, node)
}

// PushFront links the chunk at off at the head of the list.
func (s Space) PushFront(head, off uint64) {
	s.insertAfter(head, nodeOf(off))
}

// PushBack links the chunk at off at the tail of the list.
func (s Space) PushBack(head, off uint64) {
	s.insertAfter(s.prev(head), nodeOf(off))
}

// Front returns the first chunk of the list, if any.
func (s Space) Front(head uint64) (uint64, bool) {
	n := s.next(head)
	if n == head {
		return 0, false
	}
	return chunkOf(n), true
}

// PopFront unlinks and returns the first chunk of the list.
func (s Space) PopFront(head uint64) (uint64, bool) {
	off, ok := s.Front(head)
	if ok {
		s.Remove(off)
	}
	return off, ok
}

// Remove unlinks the chunk at off from whatever list holds it.
func (s Space) Remove(off uint64) {
	node := nodeOf(off)
	nx, pv := s.next(node), s.prev(node)
	s.setNext(pv, nx)
	s.setPrev(nx, pv)
	s.setNext(node, node)
	s.setPrev(node, node)
}

// Each calls fn for every chunk in the list from head to tail, stopping when
// fn returns false. limit bounds the walk so a corrupted cycle cannot hang
// the caller; Each reports false if the limit was hit.
func (s Space) Each(head uint64, limit int, fn func(off uint64) bool) bool {
	n := s.next(head)
	for i := 0; n != head; i++ {
		if i >= limit {
			return false
		}
		if !fn(chunkOf(n)) {
			return true
		}
		n = s.next(n)
	}
	return true
}

// Linked reports whether the neighbours of the chunk at off point back at it.
func (s Space) Linked(off uint64) bool {
	node := nodeOf(off)
	return s.prev(s.next(node)) == node && s.next(s.prev(node)) == node
}
