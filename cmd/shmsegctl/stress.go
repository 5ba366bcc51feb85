package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/internal/chunk"
	"github.com/joshuapare/shmseg/internal/claimlog"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/internal/logger"
	"github.com/joshuapare/shmseg/segment"
	"github.com/joshuapare/shmseg/segment/alloc"
	"github.com/joshuapare/shmseg/segment/verify"
)

// envRunAsCLI makes a re-executed test binary behave as shmsegctl.
const envRunAsCLI = "SHMSEGCTL_RUN_AS_CLI"

var (
	stressWorkers int
	stressOps     int
	stressMaxSize int
	stressKeep    int
	stressSeed    uint64
)

func init() {
	rootCmd.AddCommand(newStressCmd())
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress <path>",
		Short: "Run concurrent allocation traffic from several processes",
		Long: `The stress command starts worker processes that attach to the segment
and run random allocations, frees and resizes against it. Every worker fills
its payloads with a private stamp and checks the stamp before releasing a
chunk, so a chunk handed to two owners is caught by the worker.

Every worker also logs each chunk range it claims, with the time it got the
chunk and the time it gave it back. The parent merges the logs and replays
them, failing if two claims ever held the same bytes at once.

Each worker ends holding up to --keep allocations and reports them. The
parent checks they are live allocations, verifies the segment, then frees
them.

Example:
  shmsegctl stress /dev/shm/pool
  shmsegctl stress /dev/shm/pool --workers 8 --ops 100000 --max-size 8192`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(args)
		},
	}
	cmd.Flags().IntVar(&stressWorkers, "workers", 4, "Number of worker processes")
	cmd.Flags().IntVar(&stressOps, "ops", 10000, "Operations per worker")
	cmd.Flags().IntVar(&stressMaxSize, "max-size", 4096, "Largest request size in bytes")
	cmd.Flags().IntVar(&stressKeep, "keep", 32, "Allocations each worker leaves live for the overlap check")
	cmd.Flags().Uint64Var(&stressSeed, "seed", 1, "Base random seed; worker i uses seed+i")
	return cmd
}

// StressResult is the stress command's report.
type StressResult struct {
	Path     string         `json:"path"`
	Workers  []WorkerReport `json:"workers"`
	Claims   int            `json:"claims"`
	Live     int            `json:"live"`
	Duration string         `json:"duration"`
	UsedFrom uint64         `json:"used_before"`
	UsedTo   uint64         `json:"used_after"`
}

// claim is a chunk reported live by a worker.
type claim struct {
	worker int
	start  uint64
	end    uint64
}

func runStress(args []string) (err error) {
	path := args[0]
	if stressWorkers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}

	seg, err := segment.Attach(path)
	if err != nil {
		return err
	}
	defer detach(seg, &err)
	a := alloc.New(seg)
	usedBefore := a.Stats().Used

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	logDir, err := os.MkdirTemp("", "shmsegctl-stress-")
	if err != nil {
		return fmt.Errorf("create claim log dir: %w", err)
	}
	defer os.RemoveAll(logDir)

	start := time.Now()
	reports := make([]WorkerReport, stressWorkers)
	errs := make([]error, stressWorkers)
	var wg sync.WaitGroup
	for i := range stressWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = runWorkerProcess(exe, path, claimLogPath(logDir, i), i)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("worker %d: %w", i, err)
		}
	}

	logged, err := replayClaims(logDir, len(reports))
	if err != nil {
		return err
	}
	claims, err := liveClaims(seg, reports)
	if err != nil {
		return err
	}
	if err := verify.Segment(seg); err != nil {
		return fmt.Errorf("segment invalid after stress: %w", err)
	}
	for _, c := range claims {
		a.Free(alloc.Ref(chunk.Payload(c.start)))
	}
	if err := verify.Segment(seg); err != nil {
		return fmt.Errorf("segment invalid after release: %w", err)
	}
	usedAfter := a.Stats().Used
	if usedAfter != usedBefore {
		return fmt.Errorf("used bytes changed from %d to %d", usedBefore, usedAfter)
	}

	logger.Info("stress finished", "path", path, "workers", stressWorkers,
		"claims", logged, "live", len(claims), "duration", elapsed)

	result := StressResult{
		Path:     path,
		Workers:  reports,
		Claims:   logged,
		Live:     len(claims),
		Duration: elapsed.Round(time.Millisecond).String(),
		UsedFrom: usedBefore,
		UsedTo:   usedAfter,
	}
	if jsonOut {
		return printJSON(result)
	}

	p := newPrinter()
	for _, r := range reports {
		printVerbose("%s", p.Sprintf("worker %d: %d allocs (%d failed), %d frees, %d splits, %d merges\n",
			r.Worker, r.Ops.Allocs, r.Ops.AllocFails, r.Ops.Frees, r.Ops.Splits, r.Ops.Merges))
	}
	printInfo("%s", p.Sprintf("%d workers, %d claims replayed, no overlaps, %d live chunks released, segment valid (%s)\n",
		len(reports), logged, len(claims), result.Duration))
	return nil
}

func claimLogPath(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("worker-%d.jsonl", id))
}

func runWorkerProcess(exe, path, logPath string, id int) (WorkerReport, error) {
	var report WorkerReport
	cmd := exec.Command(exe, "worker", path,
		"--id", strconv.Itoa(id),
		"--log", logPath,
		"--seed", strconv.FormatUint(stressSeed+uint64(id), 10),
		"--ops", strconv.Itoa(stressOps),
		"--max-size", strconv.Itoa(stressMaxSize),
		"--keep", strconv.Itoa(stressKeep),
	)
	cmd.Env = append(os.Environ(), envRunAsCLI+"=1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return report, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return report, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

// replayClaims merges the claim logs of n workers and fails if two claims
// held overlapping ranges at the same time. It returns the number of claims.
func replayClaims(dir string, n int) (int, error) {
	var all []claimlog.Claim
	for id := range n {
		f, err := os.Open(claimLogPath(dir, id))
		if err != nil {
			return 0, fmt.Errorf("worker %d claim log: %w", id, err)
		}
		claims, err := claimlog.Read(f)
		_ = f.Close()
		if err != nil {
			return 0, fmt.Errorf("worker %d claim log: %w", id, err)
		}
		all = append(all, claims...)
	}
	if err := claimlog.Check(all); err != nil {
		return len(all), fmt.Errorf("overlap: %w", err)
	}
	return len(all), nil
}

// liveClaims resolves every ref the workers left live to its chunk range,
// sorted by offset. A ref that is not a live allocation is an error.
func liveClaims(seg *segment.Segment, reports []WorkerReport) ([]claim, error) {
	a := alloc.New(seg)
	var claims []claim
	for _, r := range reports {
		for _, ref := range r.Live {
			payload, ok := seg.Slice(segment.Offset(ref), 1)
			if !ok {
				return nil, fmt.Errorf("worker %d reported ref %d outside segment", r.Worker, ref)
			}
			if _, err := a.RefOf(payload); err != nil {
				return nil, fmt.Errorf("worker %d reported ref %d: %w", r.Worker, ref, err)
			}
			off := chunk.FromPayload(ref)
			size := format.ClassSize(seg.Space().Class(off))
			claims = append(claims, claim{worker: r.Worker, start: off, end: off + size})
		}
	}
	slices.SortFunc(claims, func(x, y claim) int {
		switch {
		case x.start < y.start:
			return -1
		case x.start > y.start:
			return 1
		}
		return 0
	})
	return claims, nil
}
