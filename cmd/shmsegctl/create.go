package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/segment"
)

var (
	createSizeMB    uint64
	createBufferMB  uint64
	createHugePages bool
	createMinBits   int
	createMaxBits   int
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Create and format a persistent segment",
		Long: `The create command makes a new file-backed segment, formats its header
and carves the data area into free chunks. The segment stays formatted after
shmsegctl exits; remove it with "shmsegctl destroy".

Settings come from the defaults, then from SHMSEG_SEGMENT_SIZE_MB,
SHMSEG_BUFFER_SIZE_MB and SHMSEG_HUGE_PAGES, then from flags.

Example:
  shmsegctl create /dev/shm/pool
  shmsegctl create /dev/shm/pool --size-mb 512 --max-bits 24
  SHMSEG_HUGE_PAGES=1 shmsegctl create /dev/shm/pool`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, args)
		},
	}
	cmd.Flags().Uint64Var(&createSizeMB, "size-mb", 0, "Segment size in MiB (default 128, or $"+segment.EnvSegmentSizeMB+")")
	cmd.Flags().Uint64Var(&createBufferMB, "buffer-mb", 0, "Cache buffer budget in MiB (default 60% of the segment)")
	cmd.Flags().BoolVar(&createHugePages, "huge-pages", false, "Back the segment with huge pages")
	cmd.Flags().IntVar(&createMinBits, "min-bits", 0, "Smallest chunk class (2^n bytes)")
	cmd.Flags().IntVar(&createMaxBits, "max-bits", 0, "Largest chunk class (2^n bytes)")
	return cmd
}

// createConfig layers defaults, environment and changed flags.
func createConfig(cmd *cobra.Command) (segment.Config, error) {
	cfg := segment.DefaultConfig()
	if err := segment.LoadEnv(&cfg); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("size-mb") {
		cfg.SegmentSize = createSizeMB * segment.MB
		if !flags.Changed("buffer-mb") {
			cfg.BufferSize = cfg.SegmentSize / 100 * 60
		}
	}
	if flags.Changed("buffer-mb") {
		cfg.BufferSize = createBufferMB * segment.MB
	}
	if flags.Changed("huge-pages") {
		cfg.HugePages = createHugePages
	}
	if flags.Changed("min-bits") {
		cfg.MinBits = createMinBits
	}
	if flags.Changed("max-bits") {
		cfg.MaxBits = createMaxBits
	}
	cfg.Persistent = true
	return cfg, cfg.Validate()
}

func runCreate(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := createConfig(cmd)
	if err != nil {
		return err
	}
	printVerbose("Creating segment: %s\n", path)

	seg, err := segment.Create(path, cfg)
	if err != nil {
		return err
	}
	usable := seg.Usable()
	if err := seg.Detach(); err != nil {
		return fmt.Errorf("failed to detach: %w", err)
	}

	if jsonOut {
		return printJSON(map[string]any{
			"path":        path,
			"size":        cfg.SegmentSize,
			"usable":      usable,
			"buffer_size": cfg.BufferSize,
			"min_bits":    cfg.MinBits,
			"max_bits":    cfg.MaxBits,
			"huge_pages":  cfg.HugePages,
		})
	}

	p := newPrinter()
	printInfo("%s", p.Sprintf("Created %s: %d bytes, %d usable, classes %d..%d\n",
		path, cfg.SegmentSize, usable, cfg.MinBits, cfg.MaxBits))
	return nil
}
