// Package alloc implements a buddy allocator over a shared segment.
//
// # Overview
//
// Memory is handed out in power-of-two chunks. A chunk of class c spans 2^c
// bytes, always starts at an offset that is a multiple of 2^c, and carries an
// 8-byte header recording its class and state. Every class from MinBits to
// MaxBits has its own free list rooted in the segment header, so finding a
// chunk of the right class is O(1) whenever one exists.
//
// # Allocator Interface
//
//   - TryAlloc(size): allocate; ErrOversize or ErrOutOfMemory on failure
//   - TryResize(ref, size): keep, shrink in place, or move to a larger chunk
//   - Free(ref): release and merge with free buddies
//   - Size(ref): usable payload bytes of a live allocation
//   - Alloc / Resize: as above, but report and panic instead of failing
//
// # Usage Example
//
//	seg, err := segment.Attach("/dev/shm/pool")
//	if err != nil {
//	    return err
//	}
//	a := alloc.New(seg)
//
//	ref, buf, err := a.TryAlloc(100) // 128-byte chunk, 120 usable bytes
//	if err != nil {
//	    return err
//	}
//	copy(buf, payload)
//
//	// Hand ref to another process; it resolves the same bytes with
//	// a.Payload(ref) in its own attachment.
//
//	a.Free(ref)
//
// # Splitting and Coalescing
//
// When FreeList[c] is empty, the smallest larger free chunk is halved
// repeatedly until a class-c chunk exists:
//
//	[        512        ]            FreeList[9]
//	[   256   ][   256   ]           split once
//	[128][128][   256   ]            split again; one 128 is handed out
//
// Free reverses this. The buddy of a class-c chunk at offset X is at
// X xor 2^c; while the buddy is free and of the same class, the two merge
// into one chunk of class c+1 at the lower offset.
//
// Shrinking is the exception: the released tail is carved into free chunks
// without trying to merge them with neighbours. They merge later, when they
// are allocated and freed again.
//
// # References
//
// A Ref is the segment offset of a chunk's payload. It means the same thing in
// every attached process; the []byte returned alongside it is only valid in
// the process that received it.
//
// # Failures
//
// ErrOversize and ErrOutOfMemory are ordinary errors. Freeing or resizing
// something that is not a live allocation (ErrInvalidHandle), or finding a
// damaged chunk header (*CorruptionError), means shared memory can no longer
// be trusted: the error goes to the Reporter and the call panics.
//
// # Thread Safety
//
// An Allocator may be used from many goroutines, and any number of processes
// may run allocators over the same segment. All shared state is protected by
// the segment lock; Size and Payload read only the header of a live chunk and
// take no lock.
//
// # Related Packages
//
//   - github.com/joshuapare/shmseg/segment: segment lifecycle and addressing
//   - github.com/joshuapare/shmseg/segment/verify: invariant checks
package alloc
