// Package financials turns a bill subtotal into profit, insurance liability,
// taxes and total.
package financials

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/money"
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// Breakdown is the result of Calculate. Every field is rounded to two places.
type Breakdown struct {
	SubTotal  decimal.Decimal `json:"sub_total"`
	Profit    decimal.Decimal `json:"profit"`
	Liability decimal.Decimal `json:"liability"`
	BOTax     decimal.Decimal `json:"bo_tax"`
	SalesTax  decimal.Decimal `json:"sales_tax"`
	Total     decimal.Decimal `json:"total"`
}

// OtherCharges is profit plus liability plus both taxes.
func (b Breakdown) OtherCharges() decimal.Decimal {
	return b.Profit.Add(b.Liability).Add(b.BOTax).Add(b.SalesTax)
}

// Calculate cascades the project rates over subtotal. Each step is applied
// to the running sum of the previous ones at full precision; rounding
// happens once, on return.
func Calculate(subtotal decimal.Decimal, rates model.ProjectRates) Breakdown {
	profit := subtotal.Mul(rates.ProfitPercent).Div(hundred)
	base := subtotal.Add(profit)
	liability := base.Div(thousand).Mul(rates.InsuranceRate)
	base = base.Add(liability)
	boTax := base.Mul(rates.BOTax).Div(hundred)
	base = base.Add(boTax)
	salesTax := base.Mul(rates.SalesTax).Div(hundred)
	total := base.Add(salesTax)

	return Breakdown{
		SubTotal:  money.Round(subtotal),
		Profit:    money.Round(profit),
		Liability: money.Round(liability),
		BOTax:     money.Round(boTax),
		SalesTax:  money.Round(salesTax),
		Total:     money.Round(total),
	}
}

// Bill holds the three independent applications of Calculate for one bill.
type Bill struct {
	Base         Breakdown
	ChangeOrders Breakdown
	// PerChangeOrder is keyed by change order id.
	PerChangeOrder map[string]Breakdown
}

// Counts carries the traceability fields of a bill summary.
type Counts struct {
	InvoiceIDs  []string
	LaborFeeIDs []string
}

// Summarize applies Calculate to the non-change-order actuals, to the
// combined change order actuals and to each change order on its own. The
// bases are never mixed.
func Summarize(base model.Actuals, changeOrders model.ChangeOrderActuals, rates model.ProjectRates, counts Counts) (model.BillSummary, Bill) {
	bill := Bill{
		Base:           Calculate(base.Total(), rates),
		ChangeOrders:   Calculate(changeOrders.Total(), rates),
		PerChangeOrder: make(map[string]Breakdown, len(changeOrders)),
	}
	totals := make(map[string]decimal.Decimal, len(changeOrders))
	for coID, acts := range changeOrders {
		b := Calculate(acts.Total(), rates)
		bill.PerChangeOrder[coID] = b
		totals[coID] = b.Total
	}

	summary := model.BillSummary{
		SubTotal:            bill.Base.SubTotal,
		Profit:              bill.Base.Profit,
		InsuranceLiability:  bill.Base.Liability,
		BOTax:               bill.Base.BOTax,
		SalesTax:            bill.Base.SalesTax,
		Total:               bill.Base.Total,
		ChangeOrders:        bill.ChangeOrders.Total,
		TotalsByChangeOrder: maps.Clone(totals),
		NumInvoices:         len(counts.InvoiceIDs),
		NumLaborFees:        len(counts.LaborFeeIDs),
		NumChangeOrders:     len(changeOrders),
		InvoiceIDs:          counts.InvoiceIDs,
		LaborFeeIDs:         counts.LaborFeeIDs,
	}
	return summary, bill
}

// ReservedCodes are the budget cost codes that stand for the other charges
// rather than for work. They are reported apart from the service rows.
type ReservedCodes struct {
	Profit    string `yaml:"profit" json:"profit"`
	Liability string `yaml:"liability" json:"liability"`
	BOTax     string `yaml:"bo_tax" json:"bo_tax"`
	SalesTax  string `yaml:"sales_tax" json:"sales_tax"`
}

// DefaultReservedCodes are used when the configuration names none.
var DefaultReservedCodes = ReservedCodes{Profit: "9900", Liability: "9901", BOTax: "9902", SalesTax: "9903"}

// Codes returns the non-empty reserved codes.
func (r ReservedCodes) Codes() []string {
	var out []string
	for _, c := range []string{r.Profit, r.Liability, r.BOTax, r.SalesTax} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether code is reserved.
func (r ReservedCodes) Contains(code string) bool {
	return code != "" && slices.Contains(r.Codes(), code)
}

// Line is one other-charges row.
type Line struct {
	Code   string
	Label  string
	Amount decimal.Decimal
}

// Lines returns the other charges of b in cascade order, labeled with the
// reserved codes.
func (b Breakdown) Lines(r ReservedCodes) []Line {
	return []Line{
		{Code: r.Profit, Label: "Profit", Amount: b.Profit},
		{Code: r.Liability, Label: "Insurance Liability", Amount: b.Liability},
		{Code: r.BOTax, Label: "B&O Tax", Amount: b.BOTax},
		{Code: r.SalesTax, Label: "Sales Tax", Amount: b.SalesTax},
	}
}
