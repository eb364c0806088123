package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChangeOrderRef points at a change order by id, or by name when the id is
// not known to the producer of the document.
type ChangeOrderRef struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// IsSet reports whether the reference names any change order.
func (r *ChangeOrderRef) IsSet() bool {
	return r != nil && (r.ID != "" || r.Name != "")
}

func (r *ChangeOrderRef) String() string {
	if r == nil {
		return ""
	}
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// LineItem is one line of an invoice.
type LineItem struct {
	CostCode    string              `json:"cost_code" yaml:"cost_code"`
	Description string              `json:"description" yaml:"description"`
	Qty         decimal.Decimal     `json:"qty" yaml:"qty"`
	Rate        decimal.Decimal     `json:"rate" yaml:"rate"`
	Amount      decimal.NullDecimal `json:"amount" yaml:"amount"`
	ChangeOrder *ChangeOrderRef     `json:"change_order,omitempty" yaml:"change_order,omitempty"`
}

// Invoice is an already-extracted vendor invoice.
type Invoice struct {
	ID               string              `json:"id" yaml:"id"`
	Vendor           string              `json:"vendor" yaml:"vendor"`
	Date             time.Time           `json:"date" yaml:"date"`
	CostCode         string              `json:"cost_code" yaml:"cost_code"`
	Description      string              `json:"description" yaml:"description"`
	TotalAmount      decimal.NullDecimal `json:"total_amount" yaml:"total_amount"`
	TotalTaxAmount   decimal.NullDecimal `json:"total_tax_amount" yaml:"total_tax_amount"`
	IsCredit         bool                `json:"is_credit" yaml:"is_credit"`
	Approved         bool                `json:"approved" yaml:"approved"`
	Billed           bool                `json:"billed" yaml:"billed"`
	LineItemsEnabled bool                `json:"line_items_enabled" yaml:"line_items_enabled"`
	LineItems        map[string]LineItem `json:"line_items,omitempty" yaml:"line_items,omitempty"`
	ChangeOrder      *ChangeOrderRef     `json:"change_order,omitempty" yaml:"change_order,omitempty"`
}

// DocumentID implements changeorder.Document.
func (inv Invoice) DocumentID() string { return inv.ID }

// DocumentChangeOrder implements changeorder.Document.
func (inv Invoice) DocumentChangeOrder() *ChangeOrderRef { return inv.ChangeOrder }

// LineChangeOrders implements changeorder.Document.
func (inv Invoice) LineChangeOrders() []*ChangeOrderRef {
	var refs []*ChangeOrderRef
	for _, li := range inv.LineItems {
		if li.ChangeOrder.IsSet() {
			refs = append(refs, li.ChangeOrder)
		}
	}
	return refs
}

// LaborLineItem is one cost-code allocation of a labor record.
type LaborLineItem struct {
	CostCode    string              `json:"cost_code" yaml:"cost_code"`
	Description string              `json:"description" yaml:"description"`
	Hours       decimal.Decimal     `json:"hours" yaml:"hours"`
	Amount      decimal.NullDecimal `json:"amount" yaml:"amount"`
	ChangeOrder *ChangeOrderRef     `json:"change_order,omitempty" yaml:"change_order,omitempty"`
}

// Total returns the explicit amount, or hours times the record rate.
func (li LaborLineItem) Total(rate decimal.Decimal) decimal.Decimal {
	if li.Amount.Valid {
		return li.Amount.Decimal
	}
	return li.Hours.Mul(rate)
}

// Labor is a payroll record for one worker and pay period.
type Labor struct {
	ID           string                   `json:"id" yaml:"id"`
	Name         string                   `json:"name" yaml:"name"`
	Rate         decimal.Decimal          `json:"rate" yaml:"rate"`
	PayPeriodEnd time.Time                `json:"pay_period_end" yaml:"pay_period_end"`
	Billed       bool                     `json:"billed" yaml:"billed"`
	LineItems    map[string]LaborLineItem `json:"line_items" yaml:"line_items"`
}

// DocumentID implements changeorder.Document.
func (l Labor) DocumentID() string { return l.ID }

// DocumentChangeOrder implements changeorder.Document. Labor is always
// itemized, so there is no document-level change order.
func (l Labor) DocumentChangeOrder() *ChangeOrderRef { return nil }

// LineChangeOrders implements changeorder.Document.
func (l Labor) LineChangeOrders() []*ChangeOrderRef {
	var refs []*ChangeOrderRef
	for _, li := range l.LineItems {
		if li.ChangeOrder.IsSet() {
			refs = append(refs, li.ChangeOrder)
		}
	}
	return refs
}
