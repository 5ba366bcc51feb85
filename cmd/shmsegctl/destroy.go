package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/shmseg/segment"
)

func init() {
	rootCmd.AddCommand(newDestroyCmd())
}

func newDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <path>",
		Short: "Tear down a persistent segment and remove its file",
		Long: `The destroy command clears the segment header and deletes the backing
file. It refuses while any other process is attached.

Example:
  shmsegctl destroy /dev/shm/pool`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := segment.Destroy(args[0]); err != nil {
				return err
			}
			printInfo("Destroyed %s\n", args[0])
			return nil
		},
	}
}
