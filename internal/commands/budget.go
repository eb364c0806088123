package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/b2a/internal/activitylog"
	"github.com/cleared-dev/b2a/internal/costcode"
	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/money"
	"github.com/cleared-dev/b2a/internal/store"
)

func newBudgetCommand(dir *string) *cobra.Command {
	budgetCmd := &cobra.Command{
		Use:   "budget",
		Short: "Maintain the cost-code budget",
	}
	budgetCmd.AddCommand(
		newBudgetImportCommand(dir),
		newBudgetShowCommand(dir),
		newBudgetExportCommand(dir),
		newBudgetAddCommand(dir),
		newBudgetEditCommand(dir),
		newBudgetRemoveCommand(dir),
	)
	return budgetCmd
}

func newBudgetImportCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Replace the account budget with a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, *dir)
			if err != nil {
				return err
			}
			defer ws.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening budget: %w", err)
			}
			defer f.Close()

			tree, err := costcode.ReadCSV(f)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := ws.store.SaveBudget(ctx, store.AccountScope, tree.Data()); err != nil {
				return err
			}

			codes := costcode.BuildRegistry(tree).Len()
			total := tree.BudgetTotal()
			ws.logger.Info("budget imported", "file", args[0], "cost_codes", codes)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cost codes, budget total %s\n", codes, money.Format(total))

			return ws.record(ctx, "budget: import "+filepath.Base(args[0]), activitylog.Entry{
				Action:  activitylog.ActionBudgetImport,
				Subject: filepath.Base(args[0]),
				Amount:  decimal.NewNullDecimal(total),
				Details: fmt.Sprintf("%d cost codes", codes),
			})
		},
	}
}

func budgetScope(ws *workspace, project bool) string {
	if project {
		return ws.cfg.Project.ID
	}
	return store.AccountScope
}

func newBudgetShowCommand(dir *string) *cobra.Command {
	var project bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the budget tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, *dir)
			if err != nil {
				return err
			}
			defer ws.Close()

			tree, err := ws.store.LoadTree(cmd.Context(), budgetScope(ws, project))
			if err != nil {
				return fmt.Errorf("loading budget: %w", err)
			}
			printTree(cmd.OutOrStdout(), tree)
			return nil
		},
	}
	cmd.Flags().BoolVar(&project, "project", false, "show the project copy instead of the account budget")
	return cmd
}

func printTree(w io.Writer, tree *costcode.Tree) {
	var walk func(nodes []*model.CostCodeNode, depth int)
	walk = func(nodes []*model.CostCodeNode, depth int) {
		for _, n := range nodes {
			label := strings.Repeat("  ", depth) + n.Label()
			fmt.Fprintf(w, "%-48s %14s\n", label, money.Format(subtotal(n)))
			walk(n.Children, depth+1)
		}
	}
	walk(tree.Divisions(), 0)
	fmt.Fprintf(w, "%-48s %14s\n", "Total", money.Format(tree.BudgetTotal()))
}

func subtotal(n *model.CostCodeNode) decimal.Decimal {
	if n.IsLeaf() {
		return n.Value
	}
	sum := decimal.Zero
	for _, c := range n.Children {
		sum = sum.Add(subtotal(c))
	}
	return sum
}

func newBudgetExportCommand(dir *string) *cobra.Command {
	var project bool
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the budget as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, *dir)
			if err != nil {
				return err
			}
			defer ws.Close()

			tree, err := ws.store.LoadTree(cmd.Context(), budgetScope(ws, project))
			if err != nil {
				return fmt.Errorf("loading budget: %w", err)
			}
			if output == "" {
				return costcode.WriteCSV(cmd.OutOrStdout(), tree)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			if err := costcode.WriteCSV(f, tree); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().BoolVar(&project, "project", false, "export the project copy instead of the account budget")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// parseValue reads a --value flag. An empty flag is not set.
func parseValue(raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := money.Parse(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("--value: %w", err)
	}
	return decimal.NewNullDecimal(v), nil
}

func newBudgetAddCommand(dir *string) *cobra.Command {
	var parent, value string

	cmd := &cobra.Command{
		Use:   "add <number> <name>",
		Short: "Add a cost code, or a division without --parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(value)
			if err != nil {
				return err
			}
			op := costcode.Operation{Kind: costcode.OpAddDivision, Number: args[0], Name: args[1], Value: v}
			if parent != "" {
				op.Kind = costcode.OpAdd
				op.Target = parent
			}
			return runBudgetOperation(cmd, *dir, op)
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "number of the parent cost code")
	cmd.Flags().StringVar(&value, "value", "", "budgeted amount")
	return cmd
}

func newBudgetEditCommand(dir *string) *cobra.Command {
	var number, name, value string

	cmd := &cobra.Command{
		Use:   "edit <number>",
		Short: "Renumber, rename or revalue a cost code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(value)
			if err != nil {
				return err
			}
			if number == "" && name == "" && !v.Valid {
				return fmt.Errorf("nothing to edit: set --number, --name or --value")
			}
			op := costcode.Operation{Kind: costcode.OpEdit, Target: args[0], Number: number, Name: name, Value: v}
			return runBudgetOperation(cmd, *dir, op)
		},
	}
	cmd.Flags().StringVar(&number, "number", "", "new number")
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&value, "value", "", "new budgeted amount")
	return cmd
}

func newBudgetRemoveCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <number>",
		Short: "Remove a cost code and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudgetOperation(cmd, *dir, costcode.Operation{Kind: costcode.OpRemove, Target: args[0]})
		},
	}
}

// runBudgetOperation applies op to the account budget and every project
// copy.
func runBudgetOperation(cmd *cobra.Command, dir string, op costcode.Operation) error {
	ws, err := openWorkspace(cmd, dir)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := cmd.Context()
	if err := ws.store.UpdateAllProjectBudgets(ctx, []costcode.Operation{op}); err != nil {
		return err
	}
	ws.logger.Info("budget updated", "operation", op.String())
	fmt.Fprintf(cmd.OutOrStdout(), "Applied: %s\n", op)

	entry := activitylog.Entry{
		Action:  activitylog.ActionBudgetEdit,
		Subject: op.Target,
		Details: op.String(),
	}
	if entry.Subject == "" {
		entry.Subject = op.Number
	}
	entry.Amount = op.Value
	return ws.record(ctx, "budget: "+op.String(), entry)
}
