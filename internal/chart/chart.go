// Package chart maintains the cumulative budget-to-actual series of a
// project. Each bill adds its actuals to the series; deleting a bill
// subtracts them again.
package chart

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/changeorder"
	"github.com/cleared-dev/b2a/internal/costcode"
	"github.com/cleared-dev/b2a/internal/financials"
	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/money"
)

var (
	// ErrAlreadyApplied is returned when a bill is added to a chart twice.
	ErrAlreadyApplied = errors.New("bill already applied to chart")
	// ErrNotApplied is returned when subtracting a bill the chart never saw.
	ErrNotApplied = errors.New("bill not applied to chart")
)

// Direction selects whether Merge adds or subtracts the current period.
type Direction int

const (
	Add Direction = iota
	Subtract
)

func (d Direction) String() string {
	if d == Subtract {
		return "subtract"
	}
	return "add"
}

// Level is one sibling list of the cost-code tree. Labels, Totals and
// Actuals are parallel: Totals are budgeted (rolled up for branches) and
// Actuals are cumulative. Branch labels have a Children entry.
type Level struct {
	Labels   []string          `json:"labels"`
	Totals   []decimal.Decimal `json:"totals"`
	Actuals  []decimal.Decimal `json:"actuals"`
	Children map[string]*Level `json:"children,omitempty"`
}

func (l *Level) append(label string, total, actual decimal.Decimal) {
	l.Labels = append(l.Labels, label)
	l.Totals = append(l.Totals, total)
	l.Actuals = append(l.Actuals, actual)
}

func (l *Level) index(label string) int {
	if l == nil {
		return -1
	}
	return slices.Index(l.Labels, label)
}

// Actual returns the cumulative actual for label.
func (l *Level) Actual(label string) (decimal.Decimal, bool) {
	i := l.index(label)
	if i < 0 {
		return decimal.Zero, false
	}
	return l.Actuals[i], true
}

// Child returns the level below a branch label, or nil.
func (l *Level) Child(label string) *Level {
	if l == nil {
		return nil
	}
	return l.Children[label]
}

// Clone returns a deep copy.
func (l *Level) Clone() *Level {
	if l == nil {
		return nil
	}
	c := &Level{
		Labels:  slices.Clone(l.Labels),
		Totals:  slices.Clone(l.Totals),
		Actuals: slices.Clone(l.Actuals),
	}
	if l.Children != nil {
		c.Children = make(map[string]*Level, len(l.Children))
		for k, v := range l.Children {
			c.Children[k] = v.Clone()
		}
	}
	return c
}

// InitActualsToZeros builds the first series of a project: budgeted totals
// from the tree and every cumulative actual at zero.
func InitActualsToZeros(tree *costcode.Tree) *Level {
	return FromActuals(tree, nil)
}

// FromActuals builds the series of a single period from its actuals. Branch
// values are the sums of their descendants.
func FromActuals(tree *costcode.Tree, actuals model.Actuals) *Level {
	l, _, _ := build(tree.Divisions(), actuals)
	return l
}

func build(nodes []*model.CostCodeNode, actuals model.Actuals) (*Level, decimal.Decimal, decimal.Decimal) {
	l := &Level{}
	budget, actual := decimal.Zero, decimal.Zero
	for _, n := range nodes {
		var b, a decimal.Decimal
		if n.IsLeaf() {
			b = n.Value
			if e, ok := actuals[n.Number]; ok {
				a = e.TotalAmt
			}
		} else {
			var child *Level
			child, b, a = build(n.Children, actuals)
			if l.Children == nil {
				l.Children = make(map[string]*Level)
			}
			l.Children[n.Label()] = child
		}
		l.append(n.Label(), b, a)
		budget = budget.Add(b)
		actual = actual.Add(a)
	}
	return l, budget, actual
}

// Merge folds the current period into the previous cumulative series.
// Labels are matched by name, not position: a matched label gets the
// current value added (or subtracted), a label only in prev is carried
// forward unchanged and a label only in cur starts from zero. Budgeted
// totals come from cur. Neither input is modified.
func Merge(prev, cur *Level, dir Direction) *Level {
	if cur == nil {
		return prev.Clone()
	}
	out := &Level{}
	seen := make(map[string]bool, len(cur.Labels))
	for i, label := range cur.Labels {
		seen[label] = true
		delta := cur.Actuals[i]
		if dir == Subtract {
			delta = delta.Neg()
		}
		actual := delta
		if prevActual, ok := prev.Actual(label); ok {
			actual = prevActual.Add(delta)
		}
		out.append(label, cur.Totals[i], actual)

		child := cur.Child(label)
		switch {
		case child != nil:
			out.setChild(label, Merge(prev.Child(label), child, dir))
		case prev.Child(label) != nil:
			out.setChild(label, prev.Child(label).Clone())
		}
	}
	if prev == nil {
		return out
	}
	for i, label := range prev.Labels {
		if seen[label] {
			continue
		}
		out.append(label, prev.Totals[i], prev.Actuals[i])
		if c := prev.Child(label); c != nil {
			out.setChild(label, c.Clone())
		}
	}
	return out
}

func (l *Level) setChild(label string, c *Level) {
	if l.Children == nil {
		l.Children = make(map[string]*Level)
	}
	l.Children[label] = c
}

// Point is the cumulative position of the series after one bill.
type Point struct {
	BillID     string          `json:"bill_id"`
	Period     string          `json:"period"`
	AppliedAt  time.Time       `json:"applied_at"`
	Actual     decimal.Decimal `json:"actual"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// Chart is the persisted series of one project.
type Chart struct {
	Divisions *Level `json:"divisions"`
	// BudgetTotal is the budgeted grand total of the tree.
	BudgetTotal decimal.Decimal `json:"budget_total"`
	// Contributions is the running sum of every applied bill's actuals.
	Contributions decimal.Decimal `json:"contributions"`
	ChangeOrders  ChangeOrderData `json:"change_orders"`
	History       []Point         `json:"history"`
}

// New returns the initial chart of a project.
func New(tree *costcode.Tree) *Chart {
	return &Chart{
		Divisions:    InitActualsToZeros(tree),
		BudgetTotal:  tree.BudgetTotal(),
		ChangeOrders: make(ChangeOrderData),
	}
}

// GrandTotal is the budgeted grand total plus every contribution so far,
// rounded for reporting.
func (c *Chart) GrandTotal() decimal.Decimal {
	return money.Round(c.BudgetTotal.Add(c.Contributions))
}

// Input is what applying a bill to a chart needs.
type Input struct {
	Tree     *costcode.Tree
	Snapshot *model.Snapshot
	Ledger   *changeorder.Ledger
	Rates    model.ProjectRates
	Reserved financials.ReservedCodes
	Now      time.Time
}

// Apply merges a bill snapshot into the chart in the given direction. The
// chart is only modified if the bill's presence matches dir.
func (c *Chart) Apply(in Input, dir Direction) error {
	snap := in.Snapshot
	pos := slices.IndexFunc(c.History, func(p Point) bool { return p.BillID == snap.BillID })
	switch {
	case dir == Add && pos >= 0:
		return fmt.Errorf("%w: %s", ErrAlreadyApplied, snap.BillID)
	case dir == Subtract && pos < 0:
		return fmt.Errorf("%w: %s", ErrNotApplied, snap.BillID)
	}

	cur := FromActuals(in.Tree, snap.CurrentActuals)
	c.Divisions = Merge(c.Divisions, cur, dir)
	c.BudgetTotal = in.Tree.BudgetTotal()

	coData := ChangeOrderDataFor(snap, in.Ledger, otherChargesBudget(in), in.Reserved)
	c.ChangeOrders = MergeChangeOrders(c.ChangeOrders, coData, dir)

	amount := snap.CurrentActuals.Total()
	if dir == Add {
		c.Contributions = c.Contributions.Add(amount)
		c.History = append(c.History, Point{
			BillID:     snap.BillID,
			Period:     snap.Period,
			AppliedAt:  in.Now,
			Actual:     amount,
			Cumulative: c.Contributions,
		})
		return nil
	}

	c.Contributions = c.Contributions.Sub(amount)
	removed := c.History[pos]
	c.History = slices.Delete(c.History, pos, pos+1)
	for i := pos; i < len(c.History); i++ {
		c.History[i].Cumulative = c.History[i].Cumulative.Sub(removed.Actual)
	}
	return nil
}

// otherChargesBudget applies the rates to the budgeted service total, which
// excludes the reserved codes.
func otherChargesBudget(in Input) decimal.Decimal {
	service := decimal.Zero
	in.Tree.Traverse(func(n *model.CostCodeNode, _ costcode.Path, _ []costcode.Path) {
		if !in.Reserved.Contains(n.Number) {
			service = service.Add(n.Value)
		}
	}, false)
	return financials.Calculate(service, in.Rates).OtherCharges()
}
