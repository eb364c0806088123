package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/b2a/internal/chart"
	"github.com/cleared-dev/b2a/internal/costcode"
	"github.com/cleared-dev/b2a/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "b2a.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func budget() *model.CostCodesData {
	return &model.CostCodesData{Updated: true, Divisions: []*model.CostCodeNode{
		{Number: "1", Name: "General", Children: []*model.CostCodeNode{
			{Number: "1.1", Name: "Permits", Value: d("1000")},
		}},
	}}
}

func TestBudgetRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.LoadBudget(ctx, "proj-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveBudget(ctx, "proj-1", budget()))
	tree, err := s.LoadTree(ctx, "proj-1")
	require.NoError(t, err)
	n, ok := tree.NodeByNumber("1.1")
	require.True(t, ok)
	assert.Equal(t, "1000", n.Value.String())

	// Ids assigned on first load are persisted.
	again, err := s.LoadTree(ctx, "proj-1")
	require.NoError(t, err)
	n2, _ := again.NodeByNumber("1.1")
	assert.Equal(t, n.ID, n2.ID)
}

func TestLoadTree_MigratesOnce(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	legacy := &model.CostCodesData{Divisions: []*model.CostCodeNode{
		{Number: "1", Name: "General", Items: []*model.CostCodeNode{{Number: "1.1", Name: "Permits", Value: d("5")}}},
	}}
	require.NoError(t, s.SaveBudget(ctx, AccountScope, legacy))

	tree, err := s.LoadTree(ctx, AccountScope)
	require.NoError(t, err)
	assert.True(t, costcode.BuildRegistry(tree).Exists("1.1"))

	raw, err := s.LoadBudget(ctx, AccountScope)
	require.NoError(t, err)
	assert.True(t, raw.Updated)
	assert.Empty(t, raw.Divisions[0].Items)
}

func TestUpdateAllProjectBudgets(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for _, scope := range []string{AccountScope, "proj-a", "proj-b"} {
		require.NoError(t, s.SaveBudget(ctx, scope, budget()))
	}

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"proj-a", "proj-b"}, projects)

	ops := []costcode.Operation{{Kind: costcode.OpAdd, Target: "1", Number: "1.2", Name: "Supervision", Value: decimal.NewNullDecimal(d("200"))}}
	require.NoError(t, s.UpdateAllProjectBudgets(ctx, ops))
	for _, scope := range []string{AccountScope, "proj-a", "proj-b"} {
		tree, err := s.LoadTree(ctx, scope)
		require.NoError(t, err)
		assert.True(t, costcode.BuildRegistry(tree).Exists("1.2"), scope)
	}

	// A failing op on any copy leaves every budget as it was.
	bad := []costcode.Operation{{Kind: costcode.OpRemove, Target: "1.2"}, {Kind: costcode.OpRemove, Target: "1.2"}}
	err = s.UpdateAllProjectBudgets(ctx, bad)
	require.Error(t, err)
	tree, err := s.LoadTree(ctx, "proj-b")
	require.NoError(t, err)
	assert.True(t, costcode.BuildRegistry(tree).Exists("1.2"))
}

func TestSnapshots(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	snap := &model.Snapshot{
		BillID:    "bill-1",
		ProjectID: "proj-1",
		Period:    "2025-03 (March)",
		CreatedAt: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
		CurrentActuals: model.Actuals{
			"1.1": {TotalAmt: d("1100.00"), Group: model.GroupInvoices, InvoiceIDs: []string{"inv-1"}},
		},
		CurrentActualsChangeOrders: model.ChangeOrderActuals{
			"co-1": {"1.1": {TotalAmt: d("50"), Group: model.GroupChangeOrders}},
		},
		Summary: model.BillSummary{SubTotal: d("1100.00"), NumInvoices: 1},
	}
	require.NoError(t, s.SaveClientBillSnapshot(ctx, snap))

	got, err := s.GetClientBillSnapshot(ctx, "bill-1")
	require.NoError(t, err)
	assert.Equal(t, "1100.00", got.CurrentActuals["1.1"].TotalAmt.StringFixed(2))
	assert.Equal(t, []string{"inv-1"}, got.CurrentActuals["1.1"].InvoiceIDs)
	assert.Equal(t, "50", got.CurrentActualsChangeOrders["co-1"]["1.1"].TotalAmt.String())

	bills, err := s.ListBills(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "2025-03 (March)", bills[0].Period)
	assert.True(t, bills[0].CreatedAt.Equal(snap.CreatedAt))

	require.NoError(t, s.DeleteClientBillSnapshot(ctx, "bill-1"))
	_, err = s.GetClientBillSnapshot(ctx, "bill-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteClientBillSnapshot(ctx, "bill-1"), ErrNotFound)
}

func TestChangeOrders(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	orders := []model.ChangeOrderSummary{
		{UUID: "co-2", Name: "Deck", SubtotalAmt: d("4000")},
		{UUID: "co-1", Name: "Outlets", SubtotalAmt: d("500.50")},
	}
	require.NoError(t, s.SaveChangeOrders(ctx, "proj-1", orders))

	content := map[string]map[string]model.ChangeOrderContentItem{
		"co-1": {"line-1::inv-1": {TotalAmt: d("75"), CostCode: "1.1", IsInvoice: true}},
	}
	require.NoError(t, s.UpdateChangeOrderContent(ctx, "proj-1", content))

	got, err := s.LoadChangeOrders(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "co-2", got[0].UUID, "saved order is kept")
	assert.Empty(t, got[0].Content)
	assert.Equal(t, "500.5", got[1].SubtotalAmt.String())
	assert.Equal(t, "75", got[1].Content["line-1::inv-1"].TotalAmt.String())

	err = s.UpdateChangeOrderContent(ctx, "proj-1", map[string]map[string]model.ChangeOrderContentItem{"co-9": {}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommitBillAndDelete(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.SaveChangeOrders(ctx, "proj-1", []model.ChangeOrderSummary{{UUID: "co-1", Name: "Deck"}}))

	tree, err := costcode.New(budget())
	require.NoError(t, err)
	c := chart.New(tree)

	snap := &model.Snapshot{
		BillID:    "bill-1",
		ProjectID: "proj-1",
		Summary:   model.BillSummary{InvoiceIDs: []string{"inv-1", "inv-2"}, LaborFeeIDs: []string{"lab-1"}},
	}
	content := map[string]map[string]model.ChangeOrderContentItem{
		"co-1": {"document::inv-2": {TotalAmt: d("10")}},
	}
	require.NoError(t, s.CommitBill(ctx, BillCommit{Snapshot: snap, Content: content, Chart: c}))

	billed, err := s.BilledDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"inv-1": "bill-1", "inv-2": "bill-1", "lab-1": "bill-1"}, billed)

	loaded, err := s.LoadChart(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, c.Divisions.Labels, loaded.Divisions.Labels)

	// A second commit of the same document fails and writes nothing.
	dup := &model.Snapshot{BillID: "bill-2", ProjectID: "proj-1", Summary: model.BillSummary{InvoiceIDs: []string{"inv-1"}}}
	require.Error(t, s.CommitBill(ctx, BillCommit{Snapshot: dup, Chart: c}))
	_, err = s.GetClientBillSnapshot(ctx, "bill-2")
	assert.ErrorIs(t, err, ErrNotFound)

	empty := map[string]map[string]model.ChangeOrderContentItem{"co-1": {}}
	require.NoError(t, s.CommitDelete(ctx, "proj-1", "bill-1", empty, c))
	billed, err = s.BilledDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, billed)
	cos, err := s.LoadChangeOrders(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, cos[0].Content)
}

func TestLoadChart_NotFound(t *testing.T) {
	s := openTest(t)
	_, err := s.LoadChart(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
