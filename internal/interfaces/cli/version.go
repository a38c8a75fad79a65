package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/ache-predictor/pkg/client"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate, SDK: client.Version})
		},
	}
}

//Personal.AI order the ending
