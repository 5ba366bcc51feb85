package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/segment"
	"github.com/joshuapare/shmseg/segment/alloc"
)

var statAll bool

func init() {
	rootCmd.AddCommand(newStatCmd())
}

func newStatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat <path>",
		Short: "Show segment header and per-class counters",
		Long: `The stat command attaches to a segment and prints its sizes, attach
count and, for each size class, how many chunks are allocated and free.
Classes with no chunks are hidden unless --all is given.

Example:
  shmsegctl stat /dev/shm/pool
  shmsegctl stat /dev/shm/pool --all
  shmsegctl stat /dev/shm/pool --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStat(args)
		},
	}
	cmd.Flags().BoolVar(&statAll, "all", false, "Show empty classes too")
	return cmd
}

// SegmentStats is the stat command's report.
type SegmentStats struct {
	Path       string             `json:"path"`
	Size       uint64             `json:"size"`
	Usable     uint64             `json:"usable"`
	Used       uint64             `json:"used"`
	Free       uint64             `json:"free"`
	BufferSize uint64             `json:"buffer_size"`
	MinBits    int                `json:"min_bits"`
	MaxBits    int                `json:"max_bits"`
	HugePages  bool               `json:"huge_pages"`
	Persistent bool               `json:"persistent"`
	Attached   int                `json:"attached"`
	Classes    []alloc.ClassStats `json:"classes"`
}

func runStat(args []string) (err error) {
	path := args[0]
	printVerbose("Attaching: %s\n", path)

	seg, err := segment.Attach(path)
	if err != nil {
		return err
	}
	defer detach(seg, &err)

	st := alloc.New(seg).Stats()
	report := SegmentStats{
		Path:       path,
		Size:       st.SegmentSize,
		Usable:     st.Usable,
		Used:       st.Used,
		Free:       st.FreeBytes(),
		BufferSize: st.BufferSize,
		MinBits:    st.MinBits,
		MaxBits:    st.MaxBits,
		HugePages:  seg.HugePages(),
		Persistent: seg.Persistent(),
		// Not counting this attachment.
		Attached: st.Attached - 1,
	}
	for _, c := range st.Classes {
		if statAll || c.Active > 0 || c.Free > 0 {
			report.Classes = append(report.Classes, c)
		}
	}

	if jsonOut {
		return printJSON(report)
	}
	printStats(report)
	return nil
}

func printStats(r SegmentStats) {
	if quiet {
		return
	}
	p := newPrinter()
	p.Printf("Segment:     %s\n", r.Path)
	p.Printf("Size:        %d bytes\n", r.Size)
	p.Printf("Usable:      %d bytes\n", r.Usable)
	p.Printf("Used:        %d bytes (%.1f%%)\n", r.Used, percent(r.Used, r.Usable))
	p.Printf("Free:        %d bytes\n", r.Free)
	p.Printf("Buffer:      %d bytes\n", r.BufferSize)
	p.Printf("Classes:     %d..%d\n", r.MinBits, r.MaxBits)
	p.Printf("Huge pages:  %t\n", r.HugePages)
	p.Printf("Persistent:  %t\n", r.Persistent)
	p.Printf("Attached:    %d\n", r.Attached)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "CLASS\tSIZE\tACTIVE\tFREE\t")
	for _, c := range r.Classes {
		fmt.Fprint(w, p.Sprintf("%d\t%d\t%d\t%d\t\n", c.Class, c.Size, c.Active, c.Free))
	}
	w.Flush()
}

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}
