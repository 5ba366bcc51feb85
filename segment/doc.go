// Package segment manages one fixed-size region of memory shared by several
// cooperating processes, and the header that describes it.
//
// # Overview
//
// A segment is created once, by one process, and then attached by any number
// of others. Every attachment maps the same bytes at a (usually) different
// base address, so nothing stored inside the segment is a pointer: chunks are
// identified by their Offset from the start of the region.
//
//	seg, err := segment.Create("/dev/shm/pool", segment.DefaultConfig())
//	...
//	other, err := segment.Attach("/dev/shm/pool")  // in another process
//
// # Layout
//
// The first page holds the segment header (see internal/format): sizes, the
// cross-process lock word, the attach count and, for every size class, the
// root of its free list plus active/free counters. Chunks start at
// format.DataStart and tile the rest of the region.
//
// At creation the data area is carved greedily into free chunks: at each
// offset the largest class allowed by both the offset's alignment and the
// remaining space is used. Fewer than 2^MinBits trailing bytes stay unused.
//
// # Lifecycle
//
// Detach drops this process's mapping. The last Detach tears the segment
// down: the header magic is cleared so no late Attach can observe stale
// state, and with Config.RemoveOnLastDetach the backing file is deleted.
//
// A segment created with Config.Persistent survives its last Detach and can
// be attached again later; Destroy tears it down and removes the file once
// nobody is attached.
//
// # Thread Safety
//
// Header fields that change after creation (used bytes, counters, free lists)
// must only be touched between Lock and Unlock. The lock is shared by all
// processes and goroutines attached to the segment. See package alloc for the
// operations built on top.
package segment
