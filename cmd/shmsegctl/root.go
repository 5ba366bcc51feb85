package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/internal/logger"
	"github.com/joshuapare/shmseg/segment"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "shmsegctl",
	Short: "Create, inspect and exercise shared memory segments",
	Long: `shmsegctl manages shared segments: fixed-size regions of memory that
several processes map at once, carved into power-of-two chunks by a buddy
allocator. It can create segments, report their accounting, check every
allocator invariant, and run multi-process stress traffic against them.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Log to stderr at this level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write log records as JSON")
}

func initLogging() {
	enabled := logLevel != "" || verbose
	level := logger.ParseLevel(logLevel)
	if logLevel == "" && verbose {
		level = logger.ParseLevel("debug")
	}
	logger.Init(logger.Options{
		Enabled: enabled,
		Output:  os.Stderr,
		JSON:    logJSON,
		Level:   level,
	})
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// detach detaches seg and stores a detach failure in *err unless it already
// holds an error. Deferred by every command that attaches.
func detach(seg *segment.Segment, err *error) {
	if derr := seg.Detach(); derr != nil && *err == nil {
		*err = fmt.Errorf("failed to detach: %w", derr)
	}
}
