package commands

import (
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter tally.yml and inventory seed",
	Long: `Write a starter configuration into the current directory.

Creates:
  • tally.yml     - instance, Redis, HTTP listen address and role table
  • inventory.yml - sample inventory units for bulk population

Use --force to overwrite existing files.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing tally.yml and inventory.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return printer.Error("init refused", err.Error(), nil)
		}
	}

	if err := scaffold.Initialize(forceInit, cmd.OutOrStdout()); err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(cmd.OutOrStdout())
	return nil
}
