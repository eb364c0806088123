package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/b2a/internal/money"
	"github.com/cleared-dev/b2a/internal/store"
)

func newChartCommand(dir *string) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Print the cumulative chart series as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, *dir)
			if err != nil {
				return err
			}
			defer ws.Close()

			c, err := ws.store.LoadChart(cmd.Context(), ws.cfg.Project.ID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no chart yet: build a bill first")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary {
				fmt.Fprintf(out, "Budget:        %14s\n", money.Format(c.BudgetTotal))
				fmt.Fprintf(out, "Contributions: %14s\n", money.Format(c.Contributions))
				fmt.Fprintf(out, "Grand total:   %14s\n", money.Format(c.GrandTotal()))
				for _, p := range c.History {
					fmt.Fprintf(out, "  %-38s %-18s %14s\n", p.BillID, p.Period, money.Format(p.Cumulative))
				}
				return nil
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(c)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print totals and bill history instead of JSON")
	return cmd
}
