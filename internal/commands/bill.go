package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/b2a/internal/activitylog"
	"github.com/cleared-dev/b2a/internal/bill"
	"github.com/cleared-dev/b2a/internal/importer"
	"github.com/cleared-dev/b2a/internal/money"
)

func newBillCommand(dir *string) *cobra.Command {
	billCmd := &cobra.Command{
		Use:   "bill",
		Short: "Build, delete and list client bills",
	}
	billCmd.AddCommand(
		newBillBuildCommand(dir),
		newBillDeleteCommand(dir),
		newBillListCommand(dir),
	)
	return billCmd
}

func newBuilder(ws *workspace) (*bill.Builder, error) {
	rates, err := ws.cfg.ProjectRates()
	if err != nil {
		return nil, err
	}
	policy, err := ws.cfg.Policy()
	if err != nil {
		return nil, err
	}
	return bill.NewBuilder(ws.store, bill.Config{
		ProjectID: ws.cfg.Project.ID,
		Rates:     rates,
		Reserved:  ws.cfg.ReservedCodes,
		Policy:    policy,
	}, ws.logger), nil
}

type billBuildOptions struct {
	billID string
	inputs []string
	dryRun bool
}

func newBillBuildCommand(dir *string) *cobra.Command {
	var opts billBuildOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a client bill from invoice and labor bundles",
		Long: `Build a client bill from invoice and labor bundles.

Without --input every bundle in import/ is used, and the bundles are moved to
import/processed/ once the bill is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, *dir)
			if err != nil {
				return err
			}
			defer ws.Close()
			return runBillBuild(cmd, ws, opts)
		},
	}
	cmd.Flags().StringVar(&opts.billID, "bill", "", "bill id (default: generated)")
	cmd.Flags().StringSliceVar(&opts.inputs, "input", nil, "bundle file (repeatable; default: every file in import/)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "compute and print the bill without storing it")
	return cmd
}

func runBillBuild(cmd *cobra.Command, ws *workspace, opts billBuildOptions) error {
	ctx := cmd.Context()
	reg := importer.DefaultRegistry()

	paths := opts.inputs
	scanned := false
	if len(paths) == 0 {
		files, err := importer.Scan(ws.dir, reg)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no bundles in %s", filepath.Join(ws.dir, "import"))
		}
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		scanned = true
	}

	bundle := &importer.Bundle{}
	for _, p := range paths {
		b, err := reg.Load(p)
		if err != nil {
			return err
		}
		bundle.Merge(b)
	}
	if err := bundle.Validate(); err != nil {
		return err
	}

	builder, err := newBuilder(ws)
	if err != nil {
		return err
	}
	in := bill.Input{Invoices: bundle.Invoices, Labor: bundle.Labor, ChangeOrders: bundle.ChangeOrders}

	if opts.dryRun {
		res, err := builder.Preview(ctx, in)
		if err != nil {
			return err
		}
		printBill(cmd.OutOrStdout(), res, true)
		return nil
	}

	res, err := builder.Build(ctx, opts.billID, in)
	if err != nil {
		return err
	}
	if len(res.AlreadyBilled) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: already billed, left out: %s\n", strings.Join(res.AlreadyBilled, ", "))
	}
	printBill(cmd.OutOrStdout(), res, false)

	if scanned {
		for _, p := range paths {
			if err := importer.MarkProcessed(ws.dir, filepath.Base(p)); err != nil {
				return err
			}
		}
	}

	snap := res.Snapshot
	return ws.record(ctx, fmt.Sprintf("bill: build %s (%s)", snap.BillID, snap.Period), activitylog.Entry{
		Action:  activitylog.ActionBillBuilt,
		Subject: snap.BillID,
		Amount:  decimal.NewNullDecimal(snap.Summary.Total),
		Details: fmt.Sprintf("%s: %d invoices, %d labor", snap.Period, snap.Summary.NumInvoices, snap.Summary.NumLaborFees),
	})
}

func printBill(w io.Writer, res *bill.Result, preview bool) {
	snap := res.Snapshot
	if preview {
		fmt.Fprintf(w, "Preview (not stored), period %s\n", snap.Period)
	} else {
		fmt.Fprintf(w, "Bill %s, period %s\n", snap.BillID, snap.Period)
	}
	fmt.Fprintf(w, "  Invoices:      %d\n", snap.Summary.NumInvoices)
	fmt.Fprintf(w, "  Labor fees:    %d\n", snap.Summary.NumLaborFees)
	fmt.Fprintf(w, "  Subtotal:      %14s\n", money.Format(snap.Summary.SubTotal))
	fmt.Fprintf(w, "  Profit:        %14s\n", money.Format(snap.Summary.Profit))
	fmt.Fprintf(w, "  Insurance:     %14s\n", money.Format(snap.Summary.InsuranceLiability))
	fmt.Fprintf(w, "  B&O tax:       %14s\n", money.Format(snap.Summary.BOTax))
	fmt.Fprintf(w, "  Sales tax:     %14s\n", money.Format(snap.Summary.SalesTax))
	fmt.Fprintf(w, "  Total:         %14s\n", money.Format(snap.Summary.Total))
	if snap.Summary.NumChangeOrders > 0 {
		fmt.Fprintf(w, "  Change orders: %14s\n", money.Format(snap.Summary.ChangeOrders))
	}
	if res.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped:       %d (unknown cost codes)\n", res.Skipped)
	}
}

func newBillDeleteCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <bill>",
		Short: "Delete a bill and reverse it out of the chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, *dir)
			if err != nil {
				return err
			}
			defer ws.Close()

			builder, err := newBuilder(ws)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			snap, err := builder.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted bill %s (%s)\n", snap.BillID, snap.Period)

			return ws.record(ctx, "bill: delete "+snap.BillID, activitylog.Entry{
				Action:  activitylog.ActionBillDeleted,
				Subject: snap.BillID,
				Amount:  decimal.NewNullDecimal(snap.Summary.Total),
				Details: snap.Period,
			})
		},
	}
}

func newBillListCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the project's bills, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, *dir)
			if err != nil {
				return err
			}
			defer ws.Close()

			bills, err := ws.store.ListBills(cmd.Context(), ws.cfg.Project.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(bills) == 0 {
				fmt.Fprintln(out, "No bills.")
				return nil
			}
			for _, b := range bills {
				fmt.Fprintf(out, "%-38s %-18s %s\n", b.BillID, b.Period, b.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
