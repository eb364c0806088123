package bill

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/b2a/internal/actuals"
	"github.com/cleared-dev/b2a/internal/financials"
	"github.com/cleared-dev/b2a/internal/id"
	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

var testNow = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*store.Store, *Builder) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "b2a.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.SaveBudget(ctx, store.AccountScope, &model.CostCodesData{Updated: true, Divisions: []*model.CostCodeNode{
		{Number: "1", Name: "General", Children: []*model.CostCodeNode{
			{Number: "1.1", Name: "Permits", Value: d("1000")},
			{Number: "1.2", Name: "Supervision", Value: d("2500")},
		}},
	}}))
	require.NoError(t, st.SaveChangeOrders(ctx, "proj-1", []model.ChangeOrderSummary{
		{UUID: "co-1", Name: "Deck", SubtotalAmt: d("400")},
	}))

	b := NewBuilder(st, Config{
		ProjectID: "proj-1",
		Rates:     model.ProjectRates{ProfitPercent: d("10"), InsuranceRate: d("5"), BOTax: d("2"), SalesTax: d("8")},
		Policy:    actuals.SkipUnknown,
	}, nil)
	b.now = func() time.Time { return testNow }
	return st, b
}

func invoice(docID, code, total, tax string) model.Invoice {
	return model.Invoice{
		ID:             docID,
		Vendor:         "Acme Supply",
		Date:           time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		CostCode:       code,
		TotalAmount:    nd(total),
		TotalTaxAmount: nd(tax),
		Approved:       true,
	}
}

func input() Input {
	deck := invoice("inv-2", "1.2", "300", "0")
	deck.ChangeOrder = &model.ChangeOrderRef{Name: "Deck"}
	return Input{Invoices: []model.Invoice{invoice("inv-1", "1.1", "1200.00", "100.00"), deck}}
}

func TestBuild(t *testing.T) {
	st, b := setup(t)
	ctx := context.Background()

	res, err := b.Build(ctx, "bill-1", input())
	require.NoError(t, err)

	snap := res.Snapshot
	assert.Equal(t, "2025-03 (March)", snap.Period)
	assert.Equal(t, "1100.00", snap.CurrentActuals["1.1"].TotalAmt.StringFixed(2))
	assert.Equal(t, []string{"inv-1"}, snap.CurrentActuals["1.1"].InvoiceIDs)
	assert.Equal(t, "300.00", snap.CurrentActualsChangeOrders["co-1"]["1.2"].TotalAmt.StringFixed(2))
	assert.Equal(t, "1100.00", snap.Summary.SubTotal.StringFixed(2))
	assert.Equal(t, financials.Calculate(d("1100"), b.cfg.Rates).Total.StringFixed(2), snap.Summary.Total.StringFixed(2))
	assert.Equal(t, []string{"inv-1", "inv-2"}, snap.Summary.InvoiceIDs)

	stored, err := st.GetClientBillSnapshot(ctx, "bill-1")
	require.NoError(t, err)
	assert.Equal(t, "1100.00", stored.CurrentActuals["1.1"].TotalAmt.StringFixed(2))

	// The project got its own copy of the account budget.
	_, err = st.LoadBudget(ctx, "proj-1")
	require.NoError(t, err)

	c, err := st.LoadChart(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, c.History, 1)
	assert.Equal(t, "1100.00", c.Contributions.StringFixed(2))
	assert.Equal(t, "4600.00", c.GrandTotal().StringFixed(2))
	general, ok := c.Divisions.Actual("1 General")
	require.True(t, ok)
	assert.Equal(t, "1100.00", general.StringFixed(2))

	orders, err := st.LoadChangeOrders(ctx, "proj-1")
	require.NoError(t, err)
	item, ok := orders[0].Content[id.FormatContentKey(id.WholeDocument, "inv-2")]
	require.True(t, ok)
	assert.Equal(t, "300.00", item.TotalAmt.StringFixed(2))
}

func TestBuild_UpsertsChangeOrders(t *testing.T) {
	st, b := setup(t)
	ctx := context.Background()

	in := input()
	in.Invoices[1].ChangeOrder = &model.ChangeOrderRef{Name: "Pool"}
	in.ChangeOrders = []model.ChangeOrderSummary{
		{UUID: "co-1", Name: "Deck", SubtotalAmt: d("450")},
		{UUID: "co-2", Name: "Pool", SubtotalAmt: d("999")},
	}
	_, err := b.Build(ctx, "bill-1", in)
	require.NoError(t, err)

	orders, err := st.LoadChangeOrders(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "450", orders[0].SubtotalAmt.String())
	assert.Empty(t, orders[0].Content)
	assert.Equal(t, "co-2", orders[1].UUID)
	assert.Contains(t, orders[1].Content, id.FormatContentKey(id.WholeDocument, "inv-2"))
}

func TestBuild_SkipsBilledDocuments(t *testing.T) {
	_, b := setup(t)
	ctx := context.Background()

	_, err := b.Build(ctx, "bill-1", input())
	require.NoError(t, err)

	_, err = b.Build(ctx, "bill-2", input())
	assert.ErrorIs(t, err, ErrNothingToBill)

	in := input()
	in.Invoices = append(in.Invoices, invoice("inv-3", "1.1", "50", "0"))
	res, err := b.Build(ctx, "bill-2", in)
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-1", "inv-2"}, res.AlreadyBilled)
	assert.Equal(t, "50.00", res.Snapshot.Summary.SubTotal.StringFixed(2))
	assert.Len(t, res.Chart.History, 2)
}

func TestBuild_FailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unapproved",
			mutate: func(in *Input) { in.Invoices[1].Approved = false },
			check: func(t *testing.T, err error) {
				var ae actuals.ApprovalError
				require.True(t, errors.As(err, &ae))
				assert.Equal(t, []string{"inv-2"}, ae.InvoiceIDs)
			},
		},
		{
			name:   "missing amount",
			mutate: func(in *Input) { in.Invoices[0].TotalAmount = decimal.NullDecimal{} },
			check: func(t *testing.T, err error) {
				var ve actuals.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, "inv-1", ve.DocumentID)
			},
		},
		{
			name:   "unknown change order",
			mutate: func(in *Input) { in.Invoices[1].ChangeOrder = &model.ChangeOrderRef{Name: "Pool"} },
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, b := setup(t)
			ctx := context.Background()
			in := input()
			in.ChangeOrders = []model.ChangeOrderSummary{{UUID: "co-new", Name: "Patio", SubtotalAmt: d("999")}}
			tt.mutate(&in)

			_, err := b.Build(ctx, "bill-1", in)
			tt.check(t, err)

			bills, err := st.ListBills(ctx, "proj-1")
			require.NoError(t, err)
			assert.Empty(t, bills)
			_, err = st.LoadChart(ctx, "proj-1")
			assert.ErrorIs(t, err, store.ErrNotFound)
			billed, err := st.BilledDocuments(ctx)
			require.NoError(t, err)
			assert.Empty(t, billed)
			orders, err := st.LoadChangeOrders(ctx, "proj-1")
			require.NoError(t, err)
			require.Len(t, orders, 1, "change order definitions are stored with the bill only")
			assert.Equal(t, "co-1", orders[0].UUID)
			_, err = st.LoadBudget(ctx, "proj-1")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestBuild_UnknownCostCodePolicy(t *testing.T) {
	in := Input{Invoices: []model.Invoice{
		invoice("inv-1", "1.1", "100", "0"),
		invoice("inv-2", "8.8", "100", "0"),
	}}

	_, b := setup(t)
	res, err := b.Build(context.Background(), "bill-1", in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "100.00", res.Snapshot.Summary.SubTotal.StringFixed(2))

	_, strict := setup(t)
	strict.cfg.Policy = actuals.FailUnknown
	_, err = strict.Build(context.Background(), "bill-1", in)
	var ue actuals.UnknownCostCodeError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "8.8", ue.CostCode)
}

func TestPreview_WritesNothing(t *testing.T) {
	st, b := setup(t)
	ctx := context.Background()

	res, err := b.Preview(ctx, input())
	require.NoError(t, err)
	assert.Equal(t, "1100.00", res.Snapshot.Summary.SubTotal.StringFixed(2))

	bills, err := st.ListBills(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, bills)
	orders, err := st.LoadChangeOrders(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, orders[0].Content)
	_, err = st.LoadBudget(ctx, "proj-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "preview must not copy the account budget")
}

func TestDelete(t *testing.T) {
	st, b := setup(t)
	ctx := context.Background()

	_, err := b.Build(ctx, "bill-1", input())
	require.NoError(t, err)

	snap, err := b.Delete(ctx, "bill-1")
	require.NoError(t, err)
	assert.Equal(t, "bill-1", snap.BillID)

	_, err = st.GetClientBillSnapshot(ctx, "bill-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	c, err := st.LoadChart(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, c.History)
	assert.True(t, c.Contributions.IsZero())
	general, ok := c.Divisions.Actual("1 General")
	require.True(t, ok)
	assert.True(t, general.IsZero())

	orders, err := st.LoadChangeOrders(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, orders[0].Content)

	// The documents can be billed again.
	res, err := b.Build(ctx, "bill-2", input())
	require.NoError(t, err)
	assert.Empty(t, res.AlreadyBilled)
}

func TestDelete_UnknownBill(t *testing.T) {
	_, b := setup(t)
	_, err := b.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
