package model

import "github.com/shopspring/decimal"

// ChangeOrderContentItem is one contribution (a line or a whole document)
// attributed to a change order.
type ChangeOrderContentItem struct {
	QtyAmt      decimal.Decimal `json:"qty_amt" yaml:"qty_amt"`
	RateAmt     decimal.Decimal `json:"rate_amt" yaml:"rate_amt"`
	TotalAmt    decimal.Decimal `json:"total_amt" yaml:"total_amt"`
	Description string          `json:"description" yaml:"description"`
	Vendor      string          `json:"vendor" yaml:"vendor"`
	CostCode    string          `json:"cost_code" yaml:"cost_code"`
	IsInvoice   bool            `json:"is_invoice" yaml:"is_invoice"`
	IsLaborFee  bool            `json:"is_labor_fee" yaml:"is_labor_fee"`
	UUID        string          `json:"uuid" yaml:"uuid"`
}

// ChangeOrderSummary is a change order with its content keyed by
// "{lineOrDocIdentifier}::{sourceDocumentId}".
type ChangeOrderSummary struct {
	UUID        string                            `json:"uuid" yaml:"uuid"`
	Name        string                            `json:"name" yaml:"name"`
	SubtotalAmt decimal.Decimal                   `json:"subtotal_amt" yaml:"subtotal_amt"`
	Content     map[string]ChangeOrderContentItem `json:"content,omitempty" yaml:"content,omitempty"`
}
