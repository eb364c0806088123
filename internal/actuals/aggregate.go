// Package actuals buckets approved invoices and labor records into per-cost-code
// actual totals for one client bill.
package actuals

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/changeorder"
	"github.com/cleared-dev/b2a/internal/id"
	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/money"
)

// UnknownCodePolicy decides what happens to a contribution whose cost code is
// not in the budget.
type UnknownCodePolicy string

const (
	// SkipUnknown silently drops the contribution.
	SkipUnknown UnknownCodePolicy = "skip"
	// FailUnknown aborts the aggregation with an UnknownCostCodeError.
	FailUnknown UnknownCodePolicy = "fail"
)

// ParsePolicy accepts "skip", "fail" or "" (skip).
func ParsePolicy(s string) (UnknownCodePolicy, error) {
	switch UnknownCodePolicy(s) {
	case "", SkipUnknown:
		return SkipUnknown, nil
	case FailUnknown:
		return FailUnknown, nil
	}
	return "", fmt.Errorf("unknown cost code policy %q (want skip or fail)", s)
}

// Options tune an aggregation pass.
type Options struct {
	UnknownCostCode UnknownCodePolicy
}

// Budget is the lookup the aggregator validates cost codes against.
type Budget interface {
	Exists(code string) bool
}

// Result is the in-memory outcome of one aggregation pass. Nothing in it has
// been persisted.
type Result struct {
	Actuals                model.Actuals
	ChangeOrderActuals     model.ChangeOrderActuals
	PerDocument            model.PerDocumentActuals
	PerDocumentChangeOrder model.PerDocumentChangeOrderActuals

	// Period is the "YYYY-MM (Month)" label of the latest contributing
	// document date; PeriodEnd is that date.
	Period    string
	PeriodEnd time.Time

	InvoiceIDs   []string
	LaborFeeIDs  []string
	NumInvoices  int
	NumLaborFees int
	// Skipped counts contributions dropped for an unknown cost code.
	Skipped int

	// Ledger is a copy of the input ledger with this pass's change order
	// content assigned.
	Ledger *changeorder.Ledger
}

// CheckApproval returns an ApprovalError listing every unapproved invoice.
func CheckApproval(invoices []model.Invoice) error {
	var pending []string
	for _, inv := range invoices {
		if !inv.Approved {
			pending = append(pending, inv.ID)
		}
	}
	if len(pending) > 0 {
		return ApprovalError{InvoiceIDs: pending}
	}
	return nil
}

// contribution is one line, or one whole document, headed for a bucket.
type contribution struct {
	itemKey     string
	costCode    string
	description string
	qty         decimal.Decimal
	rate        decimal.Decimal
	amount      decimal.Decimal // signed
	changeOrder *model.ChangeOrderRef
}

type aggregator struct {
	budget  Budget
	opts    Options
	ledger  *changeorder.Ledger
	res     *Result
	invoice map[string]bool
	labor   map[string]bool
}

// Aggregate computes the actuals of one client bill. Any unapproved invoice,
// invalid document, inconsistent change order assignment or unresolvable
// change order aborts the whole pass.
func Aggregate(invoices []model.Invoice, labor []model.Labor, budget Budget, ledger *changeorder.Ledger, opts Options) (*Result, error) {
	if err := CheckApproval(invoices); err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = changeorder.NewLedger(nil)
	}
	if opts.UnknownCostCode == "" {
		opts.UnknownCostCode = SkipUnknown
	}

	a := &aggregator{
		budget: budget,
		opts:   opts,
		ledger: ledger.Clone(),
		res: &Result{
			Actuals:                make(model.Actuals),
			ChangeOrderActuals:     make(model.ChangeOrderActuals),
			PerDocument:            make(model.PerDocumentActuals),
			PerDocumentChangeOrder: make(model.PerDocumentChangeOrderActuals),
		},
		invoice: make(map[string]bool),
		labor:   make(map[string]bool),
	}

	for _, inv := range invoices {
		if err := a.addInvoice(inv); err != nil {
			return nil, err
		}
	}
	for _, l := range labor {
		if err := a.addLabor(l); err != nil {
			return nil, err
		}
	}

	a.cleanup()
	res := a.res
	res.Ledger = a.ledger
	res.InvoiceIDs = sortedKeys(a.invoice)
	res.LaborFeeIDs = sortedKeys(a.labor)
	res.NumInvoices = len(res.InvoiceIDs)
	res.NumLaborFees = len(res.LaborFeeIDs)
	if !res.PeriodEnd.IsZero() {
		res.Period = id.FormatPeriod(res.PeriodEnd)
	}
	return res, nil
}

func (a *aggregator) addInvoice(inv model.Invoice) error {
	if err := changeorder.ValidateExclusivity(inv); err != nil {
		return err
	}

	var contribs []contribution
	switch {
	case lineItemMode(inv):
		for _, key := range sortedKeys(inv.LineItems) {
			li := inv.LineItems[key]
			amount := li.Qty.Mul(li.Rate)
			if li.Amount.Valid {
				amount = li.Amount.Decimal
			}
			ref := li.ChangeOrder
			if !ref.IsSet() {
				ref = inv.ChangeOrder
			}
			contribs = append(contribs, contribution{
				itemKey:     key,
				costCode:    li.CostCode,
				description: li.Description,
				qty:         li.Qty,
				rate:        li.Rate,
				amount:      signed(amount, inv.IsCredit),
				changeOrder: ref,
			})
		}
	case inv.CostCode != "" && inv.TotalAmount.Valid && inv.TotalTaxAmount.Valid:
		amount := inv.TotalAmount.Decimal.Sub(inv.TotalTaxAmount.Decimal)
		contribs = append(contribs, contribution{
			itemKey:     id.WholeDocument,
			costCode:    inv.CostCode,
			description: inv.Description,
			qty:         decimal.NewFromInt(1),
			rate:        amount,
			amount:      signed(amount, inv.IsCredit),
			changeOrder: inv.ChangeOrder,
		})
	default:
		ve := ValidationError{Vendor: inv.Vendor, DocumentID: inv.ID, Reason: "missing cost code, amount or tax and no usable line items"}
		if inv.TotalAmount.Valid {
			ve.Amount = money.Format(inv.TotalAmount.Decimal)
		}
		return ve
	}

	return a.addDocument(inv.ID, inv.Vendor, inv.Date, model.GroupInvoices, contribs)
}

// lineItemMode reports whether an invoice is aggregated line by line.
func lineItemMode(inv model.Invoice) bool {
	if !inv.LineItemsEnabled || len(inv.LineItems) == 0 {
		return false
	}
	for _, li := range inv.LineItems {
		if li.CostCode != "" || li.Amount.Valid {
			return true
		}
	}
	return false
}

func (a *aggregator) addLabor(l model.Labor) error {
	if len(l.LineItems) == 0 {
		return ValidationError{Vendor: l.Name, DocumentID: l.ID, Reason: "labor record has no line items"}
	}
	contribs := make([]contribution, 0, len(l.LineItems))
	for _, key := range sortedKeys(l.LineItems) {
		li := l.LineItems[key]
		contribs = append(contribs, contribution{
			itemKey:     key,
			costCode:    li.CostCode,
			description: li.Description,
			qty:         li.Hours,
			rate:        l.Rate,
			amount:      li.Total(l.Rate),
			changeOrder: li.ChangeOrder,
		})
	}
	return a.addDocument(l.ID, l.Name, l.PayPeriodEnd, model.GroupLabor, contribs)
}

func (a *aggregator) addDocument(docID, vendor string, date time.Time, group model.Group, contribs []contribution) error {
	isInvoice := group == model.GroupInvoices
	uuids := a.detachDocument(docID)
	a.res.PerDocument[docID] = make(model.Actuals)

	counted := false
	for _, c := range contribs {
		if c.costCode == "" && c.amount.IsZero() {
			continue
		}
		if c.costCode == "" || !a.budget.Exists(c.costCode) {
			if a.opts.UnknownCostCode == FailUnknown {
				return UnknownCostCodeError{DocumentID: docID, CostCode: c.costCode}
			}
			a.res.Skipped++
			continue
		}
		counted = true

		if !c.changeOrder.IsSet() {
			add(bucket(a.res.Actuals, c.costCode, group), c, vendor, docID, isInvoice)
			add(bucket(a.res.PerDocument[docID], c.costCode, group), c, vendor, docID, isInvoice)
			continue
		}

		coID, err := a.ledger.Resolve(c.changeOrder)
		if err != nil {
			return fmt.Errorf("document %s: %w", docID, err)
		}
		coActuals := a.res.ChangeOrderActuals[coID]
		if coActuals == nil {
			coActuals = make(model.Actuals)
			a.res.ChangeOrderActuals[coID] = coActuals
		}
		add(bucket(coActuals, c.costCode, model.GroupChangeOrders), c, vendor, docID, isInvoice)

		perDoc := a.res.PerDocumentChangeOrder[coID]
		if perDoc == nil {
			perDoc = make(model.PerDocumentActuals)
			a.res.PerDocumentChangeOrder[coID] = perDoc
		}
		if perDoc[docID] == nil {
			perDoc[docID] = make(model.Actuals)
		}
		add(bucket(perDoc[docID], c.costCode, model.GroupChangeOrders), c, vendor, docID, isInvoice)

		key := id.FormatContentKey(c.itemKey, docID)
		uuid := uuids[key]
		if uuid == "" {
			uuid = id.NewNodeID()
		}
		item := model.ChangeOrderContentItem{
			QtyAmt:      c.qty,
			RateAmt:     c.rate,
			TotalAmt:    c.amount,
			Description: c.description,
			Vendor:      vendor,
			CostCode:    c.costCode,
			IsInvoice:   isInvoice,
			IsLaborFee:  !isInvoice,
			UUID:        uuid,
		}
		if err := a.ledger.Assign(coID, key, item); err != nil {
			return fmt.Errorf("document %s: %w", docID, err)
		}
	}

	if !counted {
		return nil
	}
	if isInvoice {
		a.invoice[docID] = true
	} else {
		a.labor[docID] = true
	}
	if date.After(a.res.PeriodEnd) {
		a.res.PeriodEnd = date
	}
	return nil
}

// detachDocument removes a document's previous change order content from the
// ledger so a rebuilt document cannot leave stale routing behind. The uuids
// of the removed entries are returned so they survive reassignment.
func (a *aggregator) detachDocument(docID string) map[string]string {
	uuids := make(map[string]string)
	for _, coID := range a.ledger.IDs() {
		co, _ := a.ledger.Get(coID)
		for key, item := range co.Content {
			if id.DocumentOf(key) == docID {
				uuids[key] = item.UUID
			}
		}
	}
	if len(uuids) > 0 {
		a.ledger.RemoveDocument([]string{docID}, nil)
	}
	return uuids
}

// cleanup drops per-document buckets no contribution qualified for.
func (a *aggregator) cleanup() {
	for docID, acts := range a.res.PerDocument {
		if len(acts) == 0 {
			delete(a.res.PerDocument, docID)
		}
	}
}

func bucket(acts model.Actuals, costCode string, group model.Group) *model.ActualLedgerEntry {
	e, ok := acts[costCode]
	if !ok {
		e = &model.ActualLedgerEntry{Group: group}
		acts[costCode] = e
	}
	return e
}

func add(e *model.ActualLedgerEntry, c contribution, vendor, docID string, isInvoice bool) {
	e.TotalAmt = e.TotalAmt.Add(c.amount)
	e.QtyAmt = e.QtyAmt.Add(c.qty)
	e.RateAmt = c.rate
	if e.Vendor == "" {
		e.Vendor = vendor
	}
	if e.Description == "" {
		e.Description = c.description
	}
	if isInvoice {
		e.AddInvoiceID(docID)
	} else {
		e.AddLaborFeeID(docID)
	}
}

func signed(amount decimal.Decimal, credit bool) decimal.Decimal {
	if credit {
		return amount.Neg()
	}
	return amount
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
