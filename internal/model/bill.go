package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectRates are the percentage inputs of the bill financials cascade.
type ProjectRates struct {
	ProfitPercent decimal.Decimal `json:"profit_percent"`
	InsuranceRate decimal.Decimal `json:"insurance_rate"` // per $1,000
	BOTax         decimal.Decimal `json:"bo_tax"`
	SalesTax      decimal.Decimal `json:"sales_tax"`
}

// BillSummary is the financial summary of one client bill.
type BillSummary struct {
	SubTotal            decimal.Decimal            `json:"sub_total"`
	Profit              decimal.Decimal            `json:"profit"`
	InsuranceLiability  decimal.Decimal            `json:"insurance_liability"`
	BOTax               decimal.Decimal            `json:"bo_tax"`
	SalesTax            decimal.Decimal            `json:"sales_tax"`
	Total               decimal.Decimal            `json:"total"`
	ChangeOrders        decimal.Decimal            `json:"change_orders"`
	TotalsByChangeOrder map[string]decimal.Decimal `json:"totals_by_change_order,omitempty"`
	NumInvoices         int                        `json:"num_invoices"`
	NumLaborFees        int                        `json:"num_labor_fees"`
	NumChangeOrders     int                        `json:"num_change_orders"`
	InvoiceIDs          []string                   `json:"invoice_ids,omitempty"`
	LaborFeeIDs         []string                   `json:"labor_fee_ids,omitempty"`
}

// PerDocumentActuals maps document id -> cost code -> entry.
type PerDocumentActuals map[string]Actuals

// PerDocumentChangeOrderActuals maps change order id -> document id -> cost
// code -> entry.
type PerDocumentChangeOrderActuals map[string]PerDocumentActuals

// Snapshot is the immutable record persisted with a client bill. Reports
// read it back and bill deletion subtracts it from the chart series.
type Snapshot struct {
	BillID                        string                        `json:"bill_id"`
	ProjectID                     string                        `json:"project_id"`
	Period                        string                        `json:"period"`
	CreatedAt                     time.Time                     `json:"created_at"`
	CurrentActuals                Actuals                       `json:"current_actuals"`
	CurrentActualsChangeOrders    ChangeOrderActuals            `json:"current_actuals_change_orders"`
	PerDocumentActuals            PerDocumentActuals            `json:"per_document_actuals,omitempty"`
	PerDocumentChangeOrderActuals PerDocumentChangeOrderActuals `json:"per_document_change_order_actuals,omitempty"`
	Summary                       BillSummary                   `json:"summary"`
}
