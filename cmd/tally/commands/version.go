package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tally %s\n  commit: %s\n  built:  %s\n", orUnknown(version, "dev"), orUnknown(commit, "none"), orUnknown(date, "unknown"))
	},
}

func orUnknown(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
