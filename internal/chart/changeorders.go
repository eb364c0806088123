package chart

import (
	"maps"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/changeorder"
	"github.com/cleared-dev/b2a/internal/financials"
	"github.com/cleared-dev/b2a/internal/model"
)

// OtherChargesKey is the reserved ChangeOrderData key holding profit,
// liability and tax.
const OtherChargesKey = "other_charges"

// ChangeOrderSeries is the cumulative position of one change order.
type ChangeOrderSeries struct {
	Name             string                     `json:"name"`
	BudgetedTotal    decimal.Decimal            `json:"budgeted_total"`
	CumulativeActual decimal.Decimal            `json:"cumulative_actual"`
	CostCodes        map[string]decimal.Decimal `json:"cost_codes"`
}

func (s *ChangeOrderSeries) clone() *ChangeOrderSeries {
	c := *s
	c.CostCodes = maps.Clone(s.CostCodes)
	if c.CostCodes == nil {
		c.CostCodes = make(map[string]decimal.Decimal)
	}
	return &c
}

// ChangeOrderData is keyed by change order id, plus OtherChargesKey.
type ChangeOrderData map[string]*ChangeOrderSeries

// ChangeOrderDataFor extracts one bill's change order series. Budgeted
// totals come from the ledger; the other-charges entry is keyed by reserved
// cost code and budgeted at otherBudget.
func ChangeOrderDataFor(snap *model.Snapshot, ledger *changeorder.Ledger, otherBudget decimal.Decimal, reserved financials.ReservedCodes) ChangeOrderData {
	data := make(ChangeOrderData, len(snap.CurrentActualsChangeOrders)+1)
	for coID, acts := range snap.CurrentActualsChangeOrders {
		s := &ChangeOrderSeries{
			Name:             coID,
			CumulativeActual: acts.Total(),
			CostCodes:        make(map[string]decimal.Decimal, len(acts)),
		}
		if ledger != nil {
			if co, ok := ledger.Get(coID); ok {
				s.Name = co.Name
				s.BudgetedTotal = co.SubtotalAmt
			}
		}
		for code, e := range acts {
			s.CostCodes[code] = e.TotalAmt
		}
		data[coID] = s
	}

	sum := snap.Summary
	other := financials.Breakdown{
		Profit:    sum.Profit,
		Liability: sum.InsuranceLiability,
		BOTax:     sum.BOTax,
		SalesTax:  sum.SalesTax,
	}
	s := &ChangeOrderSeries{
		Name:             "Other Charges",
		BudgetedTotal:    otherBudget,
		CumulativeActual: other.OtherCharges(),
		CostCodes:        make(map[string]decimal.Decimal, 4),
	}
	for _, line := range other.Lines(reserved) {
		key := line.Code
		if key == "" {
			key = line.Label
		}
		s.CostCodes[key] = line.Amount
	}
	data[OtherChargesKey] = s
	return data
}

// MergeChangeOrders unions cur into prev by change order id and then by
// cost code, adding (or subtracting) actual amounts. Names and budgets are
// taken from cur. Neither input is modified.
func MergeChangeOrders(prev, cur ChangeOrderData, dir Direction) ChangeOrderData {
	out := make(ChangeOrderData, len(prev)+len(cur))
	for k, s := range prev {
		out[k] = s.clone()
	}
	for k, s := range cur {
		sign := func(d decimal.Decimal) decimal.Decimal {
			if dir == Subtract {
				return d.Neg()
			}
			return d
		}
		merged, ok := out[k]
		if !ok {
			merged = &ChangeOrderSeries{CostCodes: make(map[string]decimal.Decimal)}
			out[k] = merged
		}
		merged.Name = s.Name
		merged.BudgetedTotal = s.BudgetedTotal
		merged.CumulativeActual = merged.CumulativeActual.Add(sign(s.CumulativeActual))
		for code, amt := range s.CostCodes {
			merged.CostCodes[code] = merged.CostCodes[code].Add(sign(amt))
		}
	}
	return out
}
