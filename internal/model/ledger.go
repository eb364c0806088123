package model

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Group classifies where an actual came from.
type Group string

const (
	GroupLabor        Group = "Labor and Fees"
	GroupInvoices     Group = "Invoices"
	GroupChangeOrders Group = "Change Orders"
)

// ActualLedgerEntry is the aggregated actual for one cost code (or one cost
// code within one change order) in a single aggregation pass.
type ActualLedgerEntry struct {
	TotalAmt    decimal.Decimal `json:"total_amt"`
	QtyAmt      decimal.Decimal `json:"qty_amt"`
	RateAmt     decimal.Decimal `json:"rate_amt"`
	Vendor      string          `json:"vendor"`
	Description string          `json:"description"`
	Group       Group           `json:"group"`
	InvoiceIDs  []string        `json:"invoice_ids,omitempty"`
	LaborFeeIDs []string        `json:"labor_fee_ids,omitempty"`
}

// AddInvoiceID records a contributing invoice, keeping the list sorted and
// free of duplicates.
func (e *ActualLedgerEntry) AddInvoiceID(id string) {
	e.InvoiceIDs = insertID(e.InvoiceIDs, id)
}

// AddLaborFeeID records a contributing labor record.
func (e *ActualLedgerEntry) AddLaborFeeID(id string) {
	e.LaborFeeIDs = insertID(e.LaborFeeIDs, id)
}

// Clone returns a copy that shares no slices with e.
func (e *ActualLedgerEntry) Clone() *ActualLedgerEntry {
	c := *e
	c.InvoiceIDs = slices.Clone(e.InvoiceIDs)
	c.LaborFeeIDs = slices.Clone(e.LaborFeeIDs)
	return &c
}

func insertID(ids []string, id string) []string {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}

// Actuals maps cost code -> ledger entry.
type Actuals map[string]*ActualLedgerEntry

// Total sums TotalAmt over all entries.
func (a Actuals) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a {
		sum = sum.Add(e.TotalAmt)
	}
	return sum
}

// Clone deep-copies the map.
func (a Actuals) Clone() Actuals {
	if a == nil {
		return nil
	}
	c := make(Actuals, len(a))
	for k, e := range a {
		c[k] = e.Clone()
	}
	return c
}

// ChangeOrderActuals maps change order id -> cost code -> ledger entry.
type ChangeOrderActuals map[string]Actuals

// Total sums every change order's actuals.
func (c ChangeOrderActuals) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range c {
		sum = sum.Add(a.Total())
	}
	return sum
}

// Clone deep-copies the map.
func (c ChangeOrderActuals) Clone() ChangeOrderActuals {
	if c == nil {
		return nil
	}
	out := make(ChangeOrderActuals, len(c))
	for k, a := range c {
		out[k] = a.Clone()
	}
	return out
}
