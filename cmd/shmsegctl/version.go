package main

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/internal/format"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

// VersionInfo identifies the binary and the segment layout it reads.
type VersionInfo struct {
	Version       string `json:"version"`
	LayoutVersion int    `json:"layout_version"`
	MaxClass      int    `json:"max_class"`
	GoVersion     string `json:"go_version"`
	Revision      string `json:"revision,omitempty"`
	Modified      bool   `json:"modified,omitempty"`
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and segment layout information",
		Long: `The version command prints the shmsegctl version and the segment layout
version it understands. Segments formatted with another layout version are
refused by attach.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo()
			if jsonOut {
				return printJSON(info)
			}
			printInfo("shmsegctl %s (layout v%d, classes up to 2^%d, %s)\n",
				info.Version, info.LayoutVersion, info.MaxClass, info.GoVersion)
			if info.Revision != "" {
				dirty := ""
				if info.Modified {
					dirty = " (modified)"
				}
				printVerbose("  revision: %s%s\n", info.Revision, dirty)
			}
			return nil
		},
	}
}

func versionInfo() VersionInfo {
	info := VersionInfo{
		Version:       version,
		LayoutVersion: format.LayoutVersion,
		MaxClass:      format.MaxClassLimit,
		GoVersion:     runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Revision = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	return info
}
