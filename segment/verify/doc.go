// Package verify provides validation functions for shared segment structures.
//
// # Overview
//
// This package checks that a segment's header, chunk headers and free lists
// agree with each other. It is used in tests after every kind of allocator
// traffic and by `shmsegctl verify` against a live segment.
//
// Validation categories:
//   - Header: magic, layout version, size, class range, used bytes
//   - Tiling: chunks cover the data area without gaps or overlaps
//   - Counters: per-class active/free counters and used size match a walk
//   - Conservation: the counters account for every usable byte
//   - FreeLists: each list holds exactly its free chunks, linked both ways
//
// # Quick Start
//
// Validate a segment you are attached to:
//
//	if err := verify.Segment(seg); err != nil {
//	    fmt.Printf("Validation failed: %v\n", err)
//	}
//
// Validate raw bytes, e.g. a copy of the backing file:
//
//	data, _ := os.ReadFile("/dev/shm/pool")
//	if err := verify.AllInvariants(data); err != nil {
//	    fmt.Printf("Validation failed: %v\n", err)
//	}
//
// # ValidationError
//
// All validation functions return *ValidationError on failure:
//
//	type ValidationError struct {
//	    Type    string         // Error category (e.g., "Tiling")
//	    Message string         // Human-readable description
//	    Offset  int64          // Segment offset where error occurred (-1 if N/A)
//	    Details map[string]any // Additional context
//	}
//
// # Tiling Walk
//
// Walk starts at the data area (offset 0x1000) and steps chunk by chunk,
// using each header's class as the stride:
//
//	census, err := verify.Walk(data)
//	fmt.Printf("%d chunks, %d bytes free\n", census.Chunks, census.FreeBytes)
//
// Validates:
//   - Every chunk carries the chunk magic and a known state tag
//   - Class within [MinBits, MaxBits]
//   - Offset is a multiple of 2^class
//   - Last chunk ends exactly at 0x1000 + usable
//
// Census.Mergeable counts free buddies sitting side by side. They are legal,
// since a shrink leaves its tail unmerged, but a high count means the
// segment is fragmented.
//
// # Concurrency
//
// The raw-byte functions read without locking. On a segment other processes
// may be using, call Segment, which holds the segment lock for the whole run.
package verify
