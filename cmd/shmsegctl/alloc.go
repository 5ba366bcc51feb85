package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/segment"
	"github.com/joshuapare/shmseg/segment/alloc"
)

var (
	allocFree bool
	allocRefs []uint
)

func init() {
	rootCmd.AddCommand(newAllocCmd())
}

func newAllocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alloc <path> [size...]",
		Short: "Allocate or free chunks in a segment",
		Long: `The alloc command allocates one chunk per size argument and prints the
ref (payload offset) and class of each. Allocations outlive the command
unless --free is given; release them later with --release.

Example:
  shmsegctl alloc /dev/shm/pool 100 4000
  shmsegctl alloc /dev/shm/pool 100 --free
  shmsegctl alloc /dev/shm/pool --release 4104 --release 8200`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlloc(args)
		},
	}
	cmd.Flags().BoolVar(&allocFree, "free", false, "Free the chunks again before exiting")
	cmd.Flags().UintSliceVar(&allocRefs, "release", nil, "Free the allocation at this ref (repeatable)")
	return cmd
}

// AllocResult describes one allocation.
type AllocResult struct {
	Request int    `json:"request"`
	Ref     uint64 `json:"ref"`
	Class   int    `json:"class"`
	Size    int    `json:"size"`
}

func runAlloc(args []string) (err error) {
	path := args[0]
	sizes := make([]int, 0, len(args)-1)
	for _, arg := range args[1:] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", arg, err)
		}
		sizes = append(sizes, n)
	}

	seg, err := segment.Attach(path)
	if err != nil {
		return err
	}
	defer detach(seg, &err)
	a := alloc.New(seg)

	// Releases go first so a bad ref aborts before anything is allocated.
	for _, ref := range allocRefs {
		payload, ok := seg.Slice(segment.Offset(ref), 1)
		if !ok {
			return fmt.Errorf("ref %d outside segment", ref)
		}
		if _, err := a.RefOf(payload); err != nil {
			return err
		}
		a.Free(alloc.Ref(ref))
		printVerbose("Released %d\n", ref)
	}

	results := make([]AllocResult, 0, len(sizes))
	for _, size := range sizes {
		ref, _, err := a.TryAlloc(size)
		if err != nil {
			for _, r := range results {
				a.Free(alloc.Ref(r.Ref))
			}
			return err
		}
		capacity := a.Size(ref)
		results = append(results, AllocResult{
			Request: size,
			Ref:     uint64(ref),
			Class:   classOfSize(capacity),
			Size:    capacity,
		})
	}

	if allocFree {
		for _, r := range results {
			a.Free(alloc.Ref(r.Ref))
		}
	}

	if jsonOut {
		return printJSON(results)
	}
	p := newPrinter()
	for _, r := range results {
		printInfo("%s", p.Sprintf("ref=%d class=%d size=%d request=%d\n", r.Ref, r.Class, r.Size, r.Request))
	}
	return nil
}

// classOfSize recovers the class from a payload capacity.
func classOfSize(capacity int) int {
	return format.ClassFor(uint64(capacity))
}
