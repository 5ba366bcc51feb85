package alloc

import (
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/internal/logger"
)

// TryResize changes the capacity of the allocation at ref to hold newSize
// payload bytes.
//
//   - Same class: ref is returned unchanged and nothing moves.
//   - Larger class: a new chunk is allocated, the payload copied and the old
//     chunk freed. If the allocation fails, the original is left untouched
//     and the error is returned.
//   - Smaller class: the chunk keeps its offset and leading 2^new bytes; the
//     tail is carved into free chunks. The tail is not merged with its
//     neighbours.
func (a *Allocator) TryResize(ref Ref, newSize int) (Ref, []byte, error) {
	class, err := a.classFor(newSize)
	if err != nil {
		return 0, nil, err
	}
	off, oldClass := a.resolve(ref)

	switch {
	case class == oldClass:
		return ref, a.payload(off, class), nil
	case class > oldClass:
		return a.grow(ref, off, oldClass, newSize)
	default:
		a.shrink(ref, class)
		return ref, a.payload(off, class), nil
	}
}

// Resize is TryResize for callers that cannot handle failure.
func (a *Allocator) Resize(ref Ref, newSize int) (Ref, []byte) {
	nref, buf, err := a.TryResize(ref, newSize)
	if err != nil {
		a.fatal(err)
	}
	return nref, buf
}

func (a *Allocator) grow(ref Ref, off uint64, oldClass, newSize int) (Ref, []byte, error) {
	nref, buf, err := a.TryAlloc(newSize)
	if err != nil {
		return 0, nil, err
	}
	copy(buf, a.payload(off, oldClass))
	a.Free(ref)
	a.ops.grows.Add(1)
	return nref, buf, nil
}

func (a *Allocator) shrink(ref Ref, class int) {
	a.seg.Lock()
	defer a.seg.Unlock()

	// Revalidate under the lock; another holder of ref may have freed it.
	off, oldClass := a.resolve(ref)
	if class >= oldClass {
		return
	}

	a.space.SetClass(off, class)
	a.seg.AdjustActive(oldClass, -1)
	a.seg.AdjustActive(class, 1)
	a.seg.AdjustUsed(-int64(format.ClassSize(oldClass) - format.ClassSize(class)))
	a.seg.Carve(off+format.ClassSize(class), off+format.ClassSize(oldClass))

	a.ops.shrinks.Add(1)
	if logAlloc {
		logger.Debug("shrank chunk", "offset", off, "from", oldClass, "to", class)
	}
}
