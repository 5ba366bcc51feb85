package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/segment"
	"github.com/joshuapare/shmseg/segment/verify"
)

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <path>",
		Short: "Check every allocator invariant of a segment",
		Long: `The verify command attaches to a segment and, holding its lock, checks
the header, walks every chunk, compares the class counters with the walk,
checks that the counters account for every usable byte, and walks every
free list.

Example:
  shmsegctl verify /dev/shm/pool
  shmsegctl verify /dev/shm/pool --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args)
		},
	}
}

// VerifyResult is the verify command's report.
type VerifyResult struct {
	Path      string `json:"path"`
	Valid     bool   `json:"valid"`
	Chunks    int    `json:"chunks,omitempty"`
	Mergeable int    `json:"mergeable,omitempty"`
	Error     string `json:"error,omitempty"`
	Type      string `json:"type,omitempty"`
	Offset    int64  `json:"offset,omitempty"`
}

func runVerify(args []string) (err error) {
	path := args[0]
	printVerbose("Verifying: %s\n", path)

	seg, err := segment.Attach(path)
	if err != nil {
		return err
	}
	defer detach(seg, &err)

	result := VerifyResult{Path: path}
	seg.Lock()
	err = verify.AllInvariants(seg.Space())
	if err == nil {
		var census verify.Census
		census, err = verify.Walk(seg.Space())
		result.Chunks = census.Chunks
		result.Mergeable = census.Mergeable
	}
	seg.Unlock()

	if err != nil {
		result.Error = err.Error()
		var verr *verify.ValidationError
		if errors.As(err, &verr) {
			result.Type = verr.Type
			result.Offset = verr.Offset
		}
	} else {
		result.Valid = true
	}

	if jsonOut {
		if perr := printJSON(result); perr != nil {
			return perr
		}
	} else if result.Valid {
		p := newPrinter()
		printInfo("%s", p.Sprintf("%s: OK (%d chunks, %d mergeable pairs)\n", path, result.Chunks, result.Mergeable))
	}

	if err != nil {
		return fmt.Errorf("%s: invalid: %w", path, err)
	}
	return nil
}
