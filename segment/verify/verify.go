package verify

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/shmseg/internal/chunk"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/segment"
)

// ValidationError describes one violated invariant.
type ValidationError struct {
	Type    string
	Message string
	Offset  int64
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Census is the result of walking every chunk in the data area.
type Census struct {
	Chunks      int
	Active      [format.ClassSlots]uint64
	Free        [format.ClassSlots]uint64
	ActiveBytes uint64
	FreeBytes   uint64

	// Mergeable counts adjacent free buddies of equal class. They are legal
	// (shrink does not merge) but mark fragmentation.
	Mergeable int
}

// layout is the part of the header every check needs.
type layout struct {
	size    uint64
	usable  uint64
	minBits int
	maxBits int
}

func (l layout) end() uint64 { return format.DataStart + l.usable }

// Segment validates a live segment while holding its lock.
func Segment(seg *segment.Segment) error {
	seg.Lock()
	defer seg.Unlock()
	return AllInvariants(seg.Space())
}

// AllInvariants validates all segment invariants in one call.
// Returns the first error encountered, or nil if all checks pass.
// data must not change while it runs.
func AllInvariants(data []byte) error {
	if err := Header(data); err != nil {
		return err
	}
	census, err := Walk(data)
	if err != nil {
		return err
	}
	if err := Counters(data, census); err != nil {
		return err
	}
	if err := Conservation(data); err != nil {
		return err
	}
	return FreeLists(data)
}

// Header validates the segment header.
func Header(data []byte) error {
	if len(data) < format.DataStart {
		return &ValidationError{
			Type:    "Header",
			Message: fmt.Sprintf("segment too small: %d bytes (need %d)", len(data), format.DataStart),
			Offset:  -1,
		}
	}
	if !bytes.Equal(data[:format.SegMagicSize], format.SegmentMagic) {
		return &ValidationError{
			Type:    "Header",
			Message: fmt.Sprintf("invalid magic: got %q, expected %q", data[:format.SegMagicSize], format.SegmentMagic),
			Offset:  format.SegMagicOffset,
		}
	}
	if v := format.ReadU32(data, format.SegVersionOffset); v != format.LayoutVersion {
		return &ValidationError{
			Type:    "Header",
			Message: fmt.Sprintf("unexpected layout version: %d (expected %d)", v, format.LayoutVersion),
			Offset:  format.SegVersionOffset,
		}
	}

	l := readLayout(data)
	if l.size != uint64(len(data)) {
		return &ValidationError{
			Type:    "Header",
			Message: fmt.Sprintf("size mismatch: header=0x%X, mapped=0x%X", l.size, len(data)),
			Offset:  format.SegSizeOffset,
		}
	}
	if l.minBits < format.MinClassLimit || l.maxBits > format.MaxClassLimit || l.minBits > l.maxBits {
		return &ValidationError{
			Type:    "Header",
			Message: fmt.Sprintf("invalid class range: %d..%d", l.minBits, l.maxBits),
			Offset:  format.SegMinBitsOffset,
		}
	}
	if l.end() > l.size {
		return &ValidationError{
			Type:    "Header",
			Message: fmt.Sprintf("usable bytes 0x%X overrun segment of 0x%X", l.usable, l.size),
			Offset:  format.SegUsableOffset,
		}
	}
	if used := format.ReadU64(data, format.SegUsageOffset); used > l.size {
		return &ValidationError{
			Type:    "Header",
			Message: fmt.Sprintf("used bytes 0x%X exceed segment size 0x%X", used, l.size),
			Offset:  format.SegUsageOffset,
		}
	}
	return nil
}

// Walk visits the chunks that tile the data area and counts them. Every
// chunk must carry a valid header, be aligned to its class and end inside
// the data area; the last chunk must end exactly at the data area's end.
func Walk(data []byte) (Census, error) {
	var c Census
	if err := Header(data); err != nil {
		return c, err
	}
	l := readLayout(data)
	space := chunk.Space(data)

	var prevOff uint64
	prevClass := -1
	off := uint64(format.DataStart)
	for off < l.end() {
		if !space.Valid(off) {
			return c, &ValidationError{
				Type:    "Tiling",
				Message: "missing chunk magic",
				Offset:  int64(off),
			}
		}
		class := space.Class(off)
		if class < l.minBits || class > l.maxBits {
			return c, &ValidationError{
				Type:    "Tiling",
				Message: fmt.Sprintf("class %d outside [%d, %d]", class, l.minBits, l.maxBits),
				Offset:  int64(off),
			}
		}
		if !format.Aligned(off, class) {
			return c, &ValidationError{
				Type:    "Tiling",
				Message: fmt.Sprintf("class %d chunk not aligned to 0x%X", class, format.ClassSize(class)),
				Offset:  int64(off),
			}
		}
		size := format.ClassSize(class)
		if off+size > l.end() {
			return c, &ValidationError{
				Type:    "Tiling",
				Message: fmt.Sprintf("chunk crosses data end: chunk_end=0x%X, data_end=0x%X", off+size, l.end()),
				Offset:  int64(off),
			}
		}

		switch tag := space.Tag(off); tag {
		case format.TagFree:
			c.Free[class]++
			c.FreeBytes += size
			if prevClass == class && space.Tag(prevOff) == format.TagFree &&
				format.Buddy(prevOff, class) == off && class < l.maxBits {
				c.Mergeable++
			}
		case format.TagAllocated:
			c.Active[class]++
			c.ActiveBytes += size
		default:
			return c, &ValidationError{
				Type:    "Tiling",
				Message: fmt.Sprintf("unknown state tag 0x%02X", tag),
				Offset:  int64(off),
			}
		}

		c.Chunks++
		prevOff, prevClass = off, class
		off += size
	}
	return c, nil
}

// Counters checks the header's per-class counters and used size against a
// census of the data area.
func Counters(data []byte, c Census) error {
	for class := range format.ClassSlots {
		active := format.ReadU64(data, format.NumActiveOffset(class))
		free := format.ReadU64(data, format.NumFreeOffset(class))
		if active != c.Active[class] || free != c.Free[class] {
			return &ValidationError{
				Type: "Counters",
				Message: fmt.Sprintf("class %d counters active=%d free=%d, walk found active=%d free=%d",
					class, active, free, c.Active[class], c.Free[class]),
				Offset: int64(format.NumActiveOffset(class)),
				Details: map[string]any{
					"class":         class,
					"active":        active,
					"free":          free,
					"walked_active": c.Active[class],
					"walked_free":   c.Free[class],
				},
			}
		}
	}
	if used := format.ReadU64(data, format.SegUsageOffset); used != c.ActiveBytes {
		return &ValidationError{
			Type:    "Counters",
			Message: fmt.Sprintf("used size mismatch: header=0x%X, allocated chunks=0x%X", used, c.ActiveBytes),
			Offset:  format.SegUsageOffset,
		}
	}
	return nil
}

// Conservation checks that the class counters account for every usable
// byte: sum over classes of (active+free) * 2^class == usable.
func Conservation(data []byte) error {
	l := readLayout(data)
	var total uint64
	for class := range format.ClassSlots {
		n := format.ReadU64(data, format.NumActiveOffset(class)) +
			format.ReadU64(data, format.NumFreeOffset(class))
		total += n * format.ClassSize(class)
	}
	if total != l.usable {
		return &ValidationError{
			Type:    "Conservation",
			Message: fmt.Sprintf("counted 0x%X bytes, usable 0x%X", total, l.usable),
			Offset:  -1,
			Details: map[string]any{
				"counted": total,
				"usable":  l.usable,
			},
		}
	}
	return nil
}

// FreeLists walks every free list. Each member must be a linked free chunk
// of the list's class inside the data area, appear once, and the list length
// must match free[class]. Lists outside the configured classes must be empty.
func FreeLists(data []byte) error {
	l := readLayout(data)
	space := chunk.Space(data)
	limit := int(l.usable>>l.minBits) + 1
	seen := make(map[uint64]int)

	for class := range format.ClassSlots {
		head := format.FreeListHead(class)
		if class < l.minBits || class > l.maxBits {
			if !space.Empty(head) {
				return &ValidationError{
					Type:    "FreeLists",
					Message: fmt.Sprintf("list for unused class %d is not empty", class),
					Offset:  int64(head),
				}
			}
			continue
		}

		var verr *ValidationError
		n := 0
		complete := space.Each(head, limit, func(off uint64) bool {
			switch {
			case off < format.DataStart || off+format.ClassSize(class) > l.end():
				verr = listError(off, "class %d list entry outside data area", class)
			case !space.IsFree(off, class):
				verr = listError(off, "class %d list entry is not a free class %d chunk (class=%d tag=0x%02X)",
					class, class, space.Class(off), space.Tag(off))
			case !space.Linked(off):
				verr = listError(off, "class %d list entry has broken links", class)
			}
			if prev, dup := seen[off]; dup && verr == nil {
				verr = listError(off, "chunk on list %d already seen on list %d", class, prev)
			}
			if verr != nil {
				return false
			}
			seen[off] = class
			n++
			return true
		})
		if verr != nil {
			return verr
		}
		if !complete {
			return listError(head, "class %d list does not terminate", class)
		}
		if want := format.ReadU64(data, format.NumFreeOffset(class)); uint64(n) != want {
			return listError(head, "class %d list holds %d chunks, counter says %d", class, n, want)
		}
	}
	return nil
}

func listError(off uint64, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Type:    "FreeLists",
		Message: fmt.Sprintf(msg, args...),
		Offset:  int64(off),
	}
}

func readLayout(data []byte) layout {
	return layout{
		size:    format.ReadU64(data, format.SegSizeOffset),
		usable:  format.ReadU64(data, format.SegUsableOffset),
		minBits: int(format.ReadU8(data, format.SegMinBitsOffset)),
		maxBits: int(format.ReadU8(data, format.SegMaxBitsOffset)),
	}
}
