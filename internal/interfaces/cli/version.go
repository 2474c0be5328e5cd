package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "citoolbox %s\ncommit: %s\nbuilt: %s\ngo: %s\n",
				Version, GitCommit, BuildDate, runtime.Version())
		},
	}
}
