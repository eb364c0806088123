package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/b2a/internal/activitylog"
	"github.com/cleared-dev/b2a/internal/changeorder"
	"github.com/cleared-dev/b2a/internal/costcode"
	"github.com/cleared-dev/b2a/internal/remote"
	"github.com/cleared-dev/b2a/internal/report"
	"github.com/cleared-dev/b2a/internal/store"
)

func newReportCommand(dir *string) *cobra.Command {
	var billIDs []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the budget-to-actual report for a set of bills",
		Long: `Print the budget-to-actual report for a set of bills.

Snapshots come from the local database, or from snapshots.url when it is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, *dir)
			if err != nil {
				return err
			}
			defer ws.Close()
			return runReport(cmd, ws, billIDs, asJSON)
		},
	}
	cmd.Flags().StringSliceVar(&billIDs, "bills", nil, "bill ids, comma separated (default: every bill)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func runReport(cmd *cobra.Command, ws *workspace, billIDs []string, asJSON bool) error {
	ctx := cmd.Context()
	projectID := ws.cfg.Project.ID

	if len(billIDs) == 0 {
		bills, err := ws.store.ListBills(ctx, projectID)
		if err != nil {
			return err
		}
		for _, b := range bills {
			billIDs = append(billIDs, b.BillID)
		}
	}

	tree, err := reportTree(cmd, ws)
	if err != nil {
		return err
	}
	orders, err := ws.store.LoadChangeOrders(ctx, projectID)
	if err != nil {
		return fmt.Errorf("loading change orders: %w", err)
	}
	rates, err := ws.cfg.ProjectRates()
	if err != nil {
		return err
	}
	delay, err := ws.cfg.InitialDelay()
	if err != nil {
		return err
	}

	var source report.SnapshotSource = ws.store
	if ws.cfg.Snapshots.URL != "" {
		token := ""
		if ws.cfg.Snapshots.TokenEnv != "" {
			token = os.Getenv(ws.cfg.Snapshots.TokenEnv)
		}
		source = remote.NewClient(ws.cfg.Snapshots.URL, token)
	}

	builder := report.NewBuilder(source, report.Options{
		Fetch: report.FetchOptions{
			MaxAttempts:  ws.cfg.Snapshots.MaxAttempts,
			InitialDelay: delay,
			Concurrency:  ws.cfg.Snapshots.Concurrency,
		},
		Reserved: ws.cfg.ReservedCodes,
	}, ws.logger)

	rep, err := builder.Build(ctx, tree, changeorder.NewLedger(orders), billIDs, rates)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		fmt.Fprint(out, rep.Text())
	}
	if len(rep.Unmatched) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: actuals under cost codes missing from the budget: %s\n", strings.Join(rep.Unmatched, ", "))
	}

	return ws.record(ctx, "report: "+strings.Join(billIDs, ","), activitylog.Entry{
		Action:  activitylog.ActionReportCreated,
		Subject: strings.Join(billIDs, ";"),
		Details: strings.Join(rep.Periods, "; "),
	})
}

// reportTree is the project budget, or the account budget before the first
// bill gave the project its own copy.
func reportTree(cmd *cobra.Command, ws *workspace) (*costcode.Tree, error) {
	tree, err := ws.store.LoadTree(cmd.Context(), ws.cfg.Project.ID)
	if errors.Is(err, store.ErrNotFound) {
		tree, err = ws.store.LoadTree(cmd.Context(), store.AccountScope)
	}
	if err != nil {
		return nil, fmt.Errorf("loading budget: %w", err)
	}
	return tree, nil
}
