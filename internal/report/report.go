// Package report builds the budget-to-actual variance report of a project
// from the snapshots of its bills.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/changeorder"
	"github.com/cleared-dev/b2a/internal/costcode"
	"github.com/cleared-dev/b2a/internal/financials"
	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/money"
)

// Row is one line of the report. Branch nodes produce a header row (no
// amounts) and a "Total {name}" row after their descendants.
type Row struct {
	Number          string          `json:"number"`
	Name            string          `json:"name"`
	Label           string          `json:"label"`
	Budget          decimal.Decimal `json:"budget"`
	Actual          decimal.Decimal `json:"actual"`
	Variance        decimal.Decimal `json:"variance"`
	PercentComplete string          `json:"percent_complete"`
	Depth           int             `json:"depth"`
	HasSubItem      bool            `json:"has_sub_item"`
	IsTotal         bool            `json:"is_total"`

	nodeID string
	key    []string
}

// ChangeOrderLine is the actual of one cost code within a change order.
type ChangeOrderLine struct {
	CostCode string          `json:"cost_code"`
	Actual   decimal.Decimal `json:"actual"`
}

// ChangeOrderRow reports one change order against its subtotal.
type ChangeOrderRow struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Budget          decimal.Decimal   `json:"budget"`
	Actual          decimal.Decimal   `json:"actual"`
	Variance        decimal.Decimal   `json:"variance"`
	PercentComplete string            `json:"percent_complete"`
	Lines           []ChangeOrderLine `json:"lines,omitempty"`
}

// OtherCharge is one of the cascade rows computed from the service total.
type OtherCharge struct {
	Code   string          `json:"code"`
	Label  string          `json:"label"`
	Budget decimal.Decimal `json:"budget"`
	Actual decimal.Decimal `json:"actual"`
}

// Amounts is a budget/actual pair.
type Amounts struct {
	Budget decimal.Decimal `json:"budget"`
	Actual decimal.Decimal `json:"actual"`
}

func (a Amounts) add(b Amounts) Amounts {
	return Amounts{Budget: a.Budget.Add(b.Budget), Actual: a.Actual.Add(b.Actual)}
}

// Totals are the report footers.
type Totals struct {
	Service           Amounts       `json:"service"`
	OtherCharges      []OtherCharge `json:"other_charges"`
	OtherChargesTotal Amounts       `json:"other_charges_total"`
	Contract          Amounts       `json:"contract"`
	ChangeOrders      Amounts       `json:"change_orders"`
	Grand             Amounts       `json:"grand"`
}

// Report is the full budget-to-actual report.
type Report struct {
	Bills        []string         `json:"bills"`
	Periods      []string         `json:"periods"`
	Rows         []Row            `json:"rows"`
	ChangeOrders []ChangeOrderRow `json:"change_orders"`
	Totals       Totals           `json:"totals"`
	// Unmatched lists cost codes found in snapshots that no longer exist
	// in the budget. Their amounts are not reported.
	Unmatched []string `json:"unmatched,omitempty"`
}

// Options configure a Builder.
type Options struct {
	Fetch    FetchOptions
	Reserved financials.ReservedCodes
}

// Builder assembles reports from a snapshot source.
type Builder struct {
	source SnapshotSource
	opts   Options
	logger *slog.Logger
}

// NewBuilder creates a Builder. A nil logger discards output.
func NewBuilder(source SnapshotSource, opts Options, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{source: source, opts: opts, logger: logger}
}

// Build fetches the snapshot of every bill and reports them against the
// budget tree. Snapshots are applied in billIDs order.
func (b *Builder) Build(ctx context.Context, tree *costcode.Tree, ledger *changeorder.Ledger, billIDs []string, rates model.ProjectRates) (*Report, error) {
	snaps, err := fetchAll(ctx, b.source, billIDs, b.opts.Fetch, b.logger)
	if err != nil {
		return nil, err
	}
	r := Assemble(tree, ledger, snaps, rates, b.opts.Reserved)
	b.logger.Info("report built", "bills", len(billIDs), "rows", len(r.Rows), "change_orders", len(r.ChangeOrders))
	return r, nil
}

// Assemble builds the report from snapshots already in hand.
func Assemble(tree *costcode.Tree, ledger *changeorder.Ledger, snaps []*model.Snapshot, rates model.ProjectRates, reserved financials.ReservedCodes) *Report {
	rep := &Report{}
	rows, byNode := initRows(tree, reserved)
	reg := costcode.BuildRegistry(tree)
	cos, coIndex := initChangeOrders(ledger)
	unmatched := map[string]bool{}

	for _, snap := range snaps {
		rep.Bills = append(rep.Bills, snap.BillID)
		rep.Periods = append(rep.Periods, snap.Period)

		for code, e := range snap.CurrentActuals {
			if reserved.Contains(code) {
				continue
			}
			entry, ok := reg.Get(code)
			if !ok {
				unmatched[code] = true
				continue
			}
			row := &rows[byNode[entry.NodeID]]
			row.Actual = row.Actual.Add(e.TotalAmt)
		}

		for coID, acts := range snap.CurrentActualsChangeOrders {
			i, ok := coIndex[coID]
			if !ok {
				cos = append(cos, ChangeOrderRow{ID: coID, Title: coID})
				i = len(cos) - 1
				coIndex[coID] = i
			}
			for code, e := range acts {
				cos[i].Actual = cos[i].Actual.Add(e.TotalAmt)
				cos[i].Lines = addLine(cos[i].Lines, code, e.TotalAmt)
			}
		}
	}

	rollUp(rows, reg, byNode)

	var service Amounts
	for _, row := range rows {
		if !row.HasSubItem && !row.IsTotal {
			service = service.add(Amounts{Budget: row.Budget, Actual: row.Actual})
		}
	}
	rep.Totals = totals(service, cos, rates, reserved)

	for i := range rows {
		finish(&rows[i])
	}
	rep.Rows = filterRows(rows)
	sortRows(rep.Rows)

	for i := range cos {
		cos[i].Variance = cos[i].Budget.Sub(cos[i].Actual)
		cos[i].PercentComplete = PercentComplete(cos[i].Budget, cos[i].Actual)
		slices.SortFunc(cos[i].Lines, func(a, b ChangeOrderLine) int {
			return costcode.CompareNumbers(a.CostCode, b.CostCode)
		})
	}
	rep.ChangeOrders = cos

	for code := range unmatched {
		rep.Unmatched = append(rep.Unmatched, code)
	}
	slices.SortFunc(rep.Unmatched, costcode.CompareNumbers)
	return rep
}

// initRows creates one row per node and one total row per branch, in
// depth-first order. Reserved nodes are left out.
func initRows(tree *costcode.Tree, reserved financials.ReservedCodes) ([]Row, map[string]int) {
	var rows []Row
	byNode := map[string]int{}

	var walk func(nodes []*model.CostCodeNode, depth int, prefix []string)
	walk = func(nodes []*model.CostCodeNode, depth int, prefix []string) {
		for _, n := range nodes {
			if reserved.Contains(n.Number) {
				continue
			}
			key := append(slices.Clone(prefix), n.Number)
			row := Row{
				Number:     n.Number,
				Name:       n.Name,
				Label:      n.Label(),
				Depth:      depth,
				HasSubItem: !n.IsLeaf(),
				nodeID:     n.ID,
				key:        key,
			}
			if n.IsLeaf() {
				row.Budget = n.Value
			}
			byNode[n.ID] = len(rows)
			rows = append(rows, row)
			if n.IsLeaf() {
				continue
			}

			walk(n.Children, depth+1, key)
			rows = append(rows, Row{
				Number:  n.Number,
				Name:    "Total " + n.Name,
				Label:   "Total " + n.Label(),
				Depth:   depth,
				IsTotal: true,
				nodeID:  n.ID,
				key:     append(slices.Clone(key), totalKey),
			})
		}
	}
	walk(tree.Divisions(), 0, nil)
	return rows, byNode
}

// totalKey sorts a total row after every descendant of its branch.
const totalKey = "\uffff"

// rollUp adds every leaf into the total row of each ancestor.
func rollUp(rows []Row, reg *costcode.Registry, byNode map[string]int) {
	totalOf := map[string]int{}
	for i, row := range rows {
		if row.IsTotal {
			totalOf[row.nodeID] = i
		}
	}
	for _, e := range reg.All() {
		li, ok := byNode[e.NodeID]
		if !ok {
			continue
		}
		leaf := rows[li]
		for _, anc := range e.AncestorIDs {
			ti, ok := totalOf[anc]
			if !ok {
				continue
			}
			rows[ti].Budget = rows[ti].Budget.Add(leaf.Budget)
			rows[ti].Actual = rows[ti].Actual.Add(leaf.Actual)
		}
	}
}

func initChangeOrders(ledger *changeorder.Ledger) ([]ChangeOrderRow, map[string]int) {
	var rows []ChangeOrderRow
	index := map[string]int{}
	if ledger == nil {
		return rows, index
	}
	for _, s := range ledger.Summaries() {
		index[s.UUID] = len(rows)
		rows = append(rows, ChangeOrderRow{ID: s.UUID, Title: s.Name, Budget: s.SubtotalAmt})
	}
	return rows, index
}

func addLine(lines []ChangeOrderLine, code string, amt decimal.Decimal) []ChangeOrderLine {
	for i := range lines {
		if lines[i].CostCode == code {
			lines[i].Actual = lines[i].Actual.Add(amt)
			return lines
		}
	}
	return append(lines, ChangeOrderLine{CostCode: code, Actual: amt})
}

func totals(service Amounts, cos []ChangeOrderRow, rates model.ProjectRates, reserved financials.ReservedCodes) Totals {
	t := Totals{Service: service}

	budget := financials.Calculate(service.Budget, rates).Lines(reserved)
	actual := financials.Calculate(service.Actual, rates).Lines(reserved)
	for i := range budget {
		oc := OtherCharge{Code: budget[i].Code, Label: budget[i].Label, Budget: budget[i].Amount, Actual: actual[i].Amount}
		t.OtherCharges = append(t.OtherCharges, oc)
		t.OtherChargesTotal = t.OtherChargesTotal.add(Amounts{Budget: oc.Budget, Actual: oc.Actual})
	}
	t.Contract = service.add(t.OtherChargesTotal)

	for _, co := range cos {
		t.ChangeOrders = t.ChangeOrders.add(Amounts{Budget: co.Budget, Actual: co.Actual})
	}
	t.Grand = t.Contract.add(t.ChangeOrders)
	return t
}

func finish(row *Row) {
	if row.HasSubItem {
		return
	}
	row.Variance = row.Budget.Sub(row.Actual)
	row.PercentComplete = PercentComplete(row.Budget, row.Actual)
}

// filterRows drops rows with neither budget nor actual. A branch header is
// kept while its total row is kept.
func filterRows(rows []Row) []Row {
	keepBranch := map[string]bool{}
	for _, row := range rows {
		if row.IsTotal && !isEmpty(row) {
			keepBranch[row.nodeID] = true
		}
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		switch {
		case row.HasSubItem:
			if keepBranch[row.nodeID] {
				out = append(out, row)
			}
		case !isEmpty(row):
			out = append(out, row)
		}
	}
	return out
}

func isEmpty(row Row) bool {
	return row.Budget.IsZero() && row.Actual.IsZero()
}

// sortRows orders rows by cost-code number at every level of the tree.
// Totals follow the rows of their branch.
func sortRows(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		for i := 0; i < len(a.key) && i < len(b.key); i++ {
			if c := compareKey(a.key[i], b.key[i]); c != 0 {
				return c
			}
		}
		return len(a.key) - len(b.key)
	})
}

func compareKey(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == totalKey:
		return 1
	case b == totalKey:
		return -1
	}
	return costcode.CompareNumbers(a, b)
}

var hundredPercent = money.Percent(decimal.NewFromInt(100))

// PercentComplete renders actual as a percentage of budget. An empty row is
// "0.00%" and any actual against a zero budget is "100.00%".
func PercentComplete(budget, actual decimal.Decimal) string {
	switch {
	case budget.IsZero() && actual.IsZero():
		return money.Percent(decimal.Zero)
	case budget.IsZero():
		return hundredPercent
	}
	// Over budget reads past 100%: ((actual-budget)/budget+1)*100 is the
	// same ratio.
	return money.Percent(money.PercentOf(actual, budget))
}

// Text renders the report as aligned plain text.
func (r *Report) Text() string {
	var sb strings.Builder
	line := func(label string, budget, actual, variance decimal.Decimal, pct string) {
		fmt.Fprintf(&sb, "%-44s %14s %14s %14s %9s\n", label, money.Format(budget), money.Format(actual), money.Format(variance), pct)
	}
	fmt.Fprintf(&sb, "%-44s %14s %14s %14s %9s\n", "Cost code", "Budget", "Actual", "Variance", "Complete")
	for _, row := range r.Rows {
		label := strings.Repeat("  ", row.Depth) + row.Label
		if row.HasSubItem {
			fmt.Fprintln(&sb, label)
			continue
		}
		line(label, row.Budget, row.Actual, row.Variance, row.PercentComplete)
	}

	t := r.Totals
	sb.WriteString("\n")
	line("Service total", t.Service.Budget, t.Service.Actual, t.Service.Budget.Sub(t.Service.Actual), PercentComplete(t.Service.Budget, t.Service.Actual))
	for _, oc := range t.OtherCharges {
		line("  "+oc.Label, oc.Budget, oc.Actual, oc.Budget.Sub(oc.Actual), PercentComplete(oc.Budget, oc.Actual))
	}
	line("Other charges total", t.OtherChargesTotal.Budget, t.OtherChargesTotal.Actual, t.OtherChargesTotal.Budget.Sub(t.OtherChargesTotal.Actual), "")
	line("Contract total", t.Contract.Budget, t.Contract.Actual, t.Contract.Budget.Sub(t.Contract.Actual), PercentComplete(t.Contract.Budget, t.Contract.Actual))

	if len(r.ChangeOrders) > 0 {
		sb.WriteString("\n")
		for _, co := range r.ChangeOrders {
			line(co.Title, co.Budget, co.Actual, co.Variance, co.PercentComplete)
		}
		line("Change orders total", t.ChangeOrders.Budget, t.ChangeOrders.Actual, t.ChangeOrders.Budget.Sub(t.ChangeOrders.Actual), "")
	}
	line("Grand total", t.Grand.Budget, t.Grand.Actual, t.Grand.Budget.Sub(t.Grand.Actual), PercentComplete(t.Grand.Budget, t.Grand.Actual))
	return sb.String()
}
