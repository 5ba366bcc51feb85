package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/internal/claimlog"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/segment"
	"github.com/joshuapare/shmseg/segment/alloc"
)

var (
	workerID      int
	workerSeed    uint64
	workerOps     int
	workerMaxSize int
	workerKeep    int
	workerLog     string
)

func init() {
	rootCmd.AddCommand(newWorkerCmd())
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker <path>",
		Short:  "Run one stress worker (used by stress)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runWorker(args[0])
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().IntVar(&workerID, "id", 0, "Worker number")
	cmd.Flags().Uint64Var(&workerSeed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&workerOps, "ops", 10000, "Operations to run")
	cmd.Flags().IntVar(&workerMaxSize, "max-size", 4096, "Largest request size in bytes")
	cmd.Flags().IntVar(&workerKeep, "keep", 32, "Allocations to leave live")
	cmd.Flags().StringVar(&workerLog, "log", "", "Write claimed chunk ranges to this file")
	return cmd
}

// WorkerReport is what a worker prints on success.
type WorkerReport struct {
	Worker int           `json:"worker"`
	Ops    alloc.OpStats `json:"ops"`
	Live   []uint64      `json:"live"`
}

// held is a live allocation and the stamp written into it.
type held struct {
	ref   alloc.Ref
	size  int
	stamp uint64
}

func runWorker(path string) (report WorkerReport, err error) {
	report = WorkerReport{Worker: workerID}

	seg, err := segment.Attach(path)
	if err != nil {
		return report, err
	}
	defer detach(seg, &err)
	a := alloc.New(seg)

	out := io.Discard
	if workerLog != "" {
		f, err := os.Create(workerLog)
		if err != nil {
			return report, fmt.Errorf("open claim log: %w", err)
		}
		defer f.Close()
		out = f
	}
	claims := claimlog.New(out, workerID)

	rng := rand.New(rand.NewPCG(workerSeed, uint64(workerID)))
	var live []held
	nextStamp := uint64(workerID) << 48

	release := func(k int) error {
		h := live[k]
		if err := checkStamp(a.Payload(h.ref)[:h.size], h.stamp); err != nil {
			return fmt.Errorf("ref %d: %w", h.ref, err)
		}
		if err := claims.Release(chunkStart(h.ref)); err != nil {
			return err
		}
		a.Free(h.ref)
		live = slices.Delete(live, k, k+1)
		return nil
	}

	for range workerOps {
		switch r := rng.IntN(10); {
		case r < 5 || len(live) == 0:
			size := rng.IntN(workerMaxSize)
			ref, buf, err := a.TryAlloc(size)
			if err != nil {
				continue
			}
			claims.Acquire(chunkRange(a, ref))
			nextStamp++
			writeStamp(buf[:size], nextStamp)
			live = append(live, held{ref: ref, size: size, stamp: nextStamp})

		case r < 8:
			if err := release(rng.IntN(len(live))); err != nil {
				return report, err
			}

		default:
			k := rng.IntN(len(live))
			h := live[k]
			if err := checkStamp(a.Payload(h.ref)[:h.size], h.stamp); err != nil {
				return report, fmt.Errorf("ref %d: %w", h.ref, err)
			}
			size := rng.IntN(workerMaxSize)
			if err := claims.Release(chunkStart(h.ref)); err != nil {
				return report, err
			}
			ref, buf, err := a.TryResize(h.ref, size)
			if err != nil {
				claims.Acquire(chunkRange(a, h.ref))
				continue
			}
			claims.Acquire(chunkRange(a, ref))
			writeStamp(buf[:size], h.stamp)
			live[k] = held{ref: ref, size: size, stamp: h.stamp}
		}
	}

	for len(live) > workerKeep {
		if err := release(len(live) - 1); err != nil {
			return report, err
		}
	}
	for _, h := range live {
		if err := checkStamp(a.Payload(h.ref)[:h.size], h.stamp); err != nil {
			return report, fmt.Errorf("ref %d: %w", h.ref, err)
		}
		report.Live = append(report.Live, uint64(h.ref))
	}
	if err := claims.Close(); err != nil {
		return report, fmt.Errorf("write claim log: %w", err)
	}
	report.Ops = a.Stats().Ops
	return report, nil
}

// chunkStart returns the offset of the chunk behind ref.
func chunkStart(ref alloc.Ref) uint64 {
	return uint64(ref) - format.ChunkHeaderSize
}

// chunkRange returns the byte range of the chunk behind ref.
func chunkRange(a *alloc.Allocator, ref alloc.Ref) (uint64, uint64) {
	start := chunkStart(ref)
	return start, start + uint64(a.Size(ref)) + format.ChunkHeaderSize
}

// writeStamp fills b with repeated little-endian copies of stamp.
func writeStamp(b []byte, stamp uint64) {
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], stamp)
	for i := range b {
		b[i] = w[i%8]
	}
}

func checkStamp(b []byte, stamp uint64) error {
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], stamp)
	for i := range b {
		if b[i] != w[i%8] {
			return fmt.Errorf("payload byte %d overwritten: got 0x%02X, want 0x%02X", i, b[i], w[i%8])
		}
	}
	return nil
}
