package actuals

import (
	"fmt"
	"strings"
)

// ValidationError names a document that has neither usable line items nor a
// complete whole-document cost code, amount and tax.
type ValidationError struct {
	Vendor     string
	DocumentID string
	Amount     string
	Reason     string
}

func (e ValidationError) Error() string {
	amount := e.Amount
	if amount == "" {
		amount = "no amount"
	}
	return fmt.Sprintf("%s %s (%s): %s", e.Vendor, e.DocumentID, amount, e.Reason)
}

// ApprovalError lists invoices that must be approved before a bill can be
// built.
type ApprovalError struct {
	InvoiceIDs []string
}

func (e ApprovalError) Error() string {
	return fmt.Sprintf("%d invoice(s) not approved: %s", len(e.InvoiceIDs), strings.Join(e.InvoiceIDs, ", "))
}

// UnknownCostCodeError is returned under the fail policy when a contribution
// references a cost code missing from the budget.
type UnknownCostCodeError struct {
	DocumentID string
	CostCode   string
}

func (e UnknownCostCodeError) Error() string {
	if e.CostCode == "" {
		return fmt.Sprintf("document %s: line has an amount but no cost code", e.DocumentID)
	}
	return fmt.Sprintf("document %s: cost code %s is not in the budget", e.DocumentID, e.CostCode)
}
