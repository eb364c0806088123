package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/b2a/internal/activitylog"
	"github.com/cleared-dev/b2a/internal/money"
)

func newLogCommand(dir *string) *cobra.Command {
	var action, subject, since string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			absDir, err := filepath.Abs(*dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			q := activitylog.Query{Subject: subject}
			if action != "" {
				if q.Action, err = activitylog.ParseAction(action); err != nil {
					return err
				}
			}
			if since != "" {
				if q.Since, err = time.Parse(time.DateOnly, since); err != nil {
					return fmt.Errorf("--since: %w", err)
				}
			}

			entries, err := activitylog.Read(absDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range activitylog.Filter(entries, q) {
				amount := ""
				if e.Amount.Valid {
					amount = money.Format(e.Amount.Decimal)
				}
				fmt.Fprintf(out, "%s  %-14s %-38s %14s  %s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04"), e.Action, e.Subject, amount, e.Details)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "only this action (bill_built, bill_deleted, budget_import, budget_edit, report_created)")
	cmd.Flags().StringVar(&subject, "subject", "", "only this bill id or cost code")
	cmd.Flags().StringVar(&since, "since", "", "only entries on or after this date (YYYY-MM-DD)")
	return cmd
}
