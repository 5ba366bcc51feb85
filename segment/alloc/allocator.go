package alloc

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/joshuapare/shmseg/internal/chunk"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/internal/logger"
	"github.com/joshuapare/shmseg/segment"
)

// Runtime debug flag for split/merge tracing - controlled by SHMSEG_LOG_ALLOC env var.
var logAlloc = os.Getenv("SHMSEG_LOG_ALLOC") != ""

// allocRetries is how many times TryAlloc starts over after finding no chunk.
// A single retry covers a free in another process landing between the failed
// attempt and the lock release; it is not a backoff policy.
const allocRetries = 1

// Ref is the segment offset of an allocation's payload.
type Ref = segment.Offset

// Allocator runs the buddy algorithms over one attached segment.
type Allocator struct {
	seg      *segment.Segment
	space    chunk.Space
	minBits  int
	maxBits  int
	reporter Reporter

	// Per-process operation counters.
	ops opCounters
}

type opCounters struct {
	allocs, allocFails, retries atomic.Int64
	frees, splits, merges       atomic.Int64
	grows, shrinks              atomic.Int64
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithReporter routes fatal conditions to r instead of LogReporter.
func WithReporter(r Reporter) Option {
	return func(a *Allocator) {
		if r != nil {
			a.reporter = r
		}
	}
}

// New returns an allocator over seg. Allocators are cheap; every process
// (or goroutine) may make its own over its own attachment.
func New(seg *segment.Segment, opts ...Option) *Allocator {
	a := &Allocator{
		seg:      seg,
		space:    seg.Space(),
		minBits:  seg.MinBits(),
		maxBits:  seg.MaxBits(),
		reporter: LogReporter,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Segment returns the segment this allocator works on.
func (a *Allocator) Segment() *segment.Segment { return a.seg }

// classFor maps a request size to the class that serves it.
func (a *Allocator) classFor(size int) (int, error) {
	if size < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	if uint64(size) > format.ClassSize(a.maxBits) {
		return 0, fmt.Errorf("%w: %d bytes, max class %d", ErrOversize, size, a.maxBits)
	}
	class := format.ClassFor(uint64(size))
	if class > a.maxBits {
		return 0, fmt.Errorf("%w: %d bytes needs class %d, max %d", ErrOversize, size, class, a.maxBits)
	}
	return max(class, a.minBits), nil
}

// TryAlloc allocates a chunk with at least size payload bytes. It returns the
// chunk's Ref and its payload as a slice of this process's mapping.
func (a *Allocator) TryAlloc(size int) (Ref, []byte, error) {
	class, err := a.classFor(size)
	if err != nil {
		return 0, nil, err
	}
	a.ops.allocs.Add(1)

	for attempt := 0; ; attempt++ {
		if off, ok := a.take(class); ok {
			return Ref(chunk.Payload(off)), a.payload(off, class), nil
		}
		if attempt == allocRetries {
			break
		}
		a.ops.retries.Add(1)
	}

	a.ops.allocFails.Add(1)
	logger.Warn("shared segment exhausted", "size", size, "class", class)
	return 0, nil, fmt.Errorf("%w: %d bytes (class %d)", ErrOutOfMemory, size, class)
}

// Alloc is TryAlloc for callers that cannot handle failure: errors go to the
// reporter and Alloc panics.
func (a *Allocator) Alloc(size int) (Ref, []byte) {
	ref, buf, err := a.TryAlloc(size)
	if err != nil {
		a.fatal(err)
	}
	return ref, buf
}

// take removes a chunk of the given class from its free list, splitting a
// larger chunk first if the list is empty, and marks it allocated.
func (a *Allocator) take(class int) (uint64, bool) {
	a.seg.Lock()
	defer a.seg.Unlock()

	head := a.seg.FreeList(class)
	if a.space.Empty(head) && !a.split(class+1) {
		return 0, false
	}
	off, _ := a.space.PopFront(head)
	a.expectFree(off, class)

	a.space.SetAllocated(off, class)
	a.seg.AdjustFree(class, -1)
	a.seg.AdjustActive(class, 1)
	a.seg.AdjustUsed(int64(format.ClassSize(class)))
	return off, true
}

// split makes FreeList[class-1] non-empty by halving a chunk of the given
// class, recursing upwards when that list is empty too. Recursion depth is
// bounded by MaxBits-MinBits. Caller holds the lock.
func (a *Allocator) split(class int) bool {
	if class > a.maxBits {
		return false
	}
	head := a.seg.FreeList(class)
	if a.space.Empty(head) && !a.split(class+1) {
		return false
	}
	off, _ := a.space.PopFront(head)
	a.expectFree(off, class)
	a.seg.AdjustFree(class, -1)

	class--
	upper := off + format.ClassSize(class)
	a.space.SetFree(off, class)
	a.space.SetFree(upper, class)

	// Lower half first, so allocations fill the segment from the bottom.
	lower := a.seg.FreeList(class)
	a.space.PushFront(lower, upper)
	a.space.PushFront(lower, off)
	a.seg.AdjustFree(class, 2)

	a.ops.splits.Add(1)
	if logAlloc {
		logger.Debug("split chunk", "offset", off, "class", class+1)
	}
	return true
}

// payload returns the payload of the chunk at off as a capped slice.
func (a *Allocator) payload(off uint64, class int) []byte {
	start := chunk.Payload(off)
	end := off + format.ClassSize(class)
	return a.space[start:end:end]
}

// expectFree panics if the chunk popped from FreeList[class] is not a free
// chunk of that class.
func (a *Allocator) expectFree(off uint64, class int) {
	if !a.space.IsFree(off, class) {
		a.fatal(corruptf(off, "on free list %d but header says class %d tag 0x%02X",
			class, a.space.Class(off), a.space.Tag(off)))
	}
	if !format.Aligned(off, class) {
		a.fatal(corruptf(off, "class %d chunk misaligned", class))
	}
}
