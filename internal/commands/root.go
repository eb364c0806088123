package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/b2a/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var dir string

	rootCmd := &cobra.Command{
		Use:     "b2a",
		Short:   "Budget-to-actual billing for construction projects",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dir, "dir", ".", "workspace directory")

	rootCmd.AddCommand(
		newInitCommand(),
		newBudgetCommand(&dir),
		newBillCommand(&dir),
		newReportCommand(&dir),
		newChartCommand(&dir),
		newLogCommand(&dir),
	)

	return rootCmd
}
