// Package bill builds client bills from approved invoices and labor and
// reverses them. Everything is computed in memory; storage is written once,
// after the whole computation succeeded.
package bill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cleared-dev/b2a/internal/actuals"
	"github.com/cleared-dev/b2a/internal/changeorder"
	"github.com/cleared-dev/b2a/internal/chart"
	"github.com/cleared-dev/b2a/internal/costcode"
	"github.com/cleared-dev/b2a/internal/financials"
	"github.com/cleared-dev/b2a/internal/id"
	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/store"
)

// ErrNothingToBill is returned when every input document is already billed.
var ErrNothingToBill = errors.New("no unbilled documents")

// Store is the persistence a Builder needs.
type Store interface {
	LoadTree(ctx context.Context, scope string) (*costcode.Tree, error)
	LoadChangeOrders(ctx context.Context, projectID string) ([]model.ChangeOrderSummary, error)
	LoadChart(ctx context.Context, projectID string) (*chart.Chart, error)
	BilledDocuments(ctx context.Context) (map[string]string, error)
	GetClientBillSnapshot(ctx context.Context, billID string) (*model.Snapshot, error)
	CommitBill(ctx context.Context, c store.BillCommit) error
	CommitDelete(ctx context.Context, projectID, billID string, content map[string]map[string]model.ChangeOrderContentItem, c *chart.Chart) error
}

// Config is the project a Builder bills for.
type Config struct {
	ProjectID string
	Rates     model.ProjectRates
	Reserved  financials.ReservedCodes
	Policy    actuals.UnknownCodePolicy
}

// Input is the documents offered for one bill. ChangeOrders are definitions
// upserted by id into the project's change orders; content already attributed
// to a stored change order is kept.
type Input struct {
	Invoices     []model.Invoice
	Labor        []model.Labor
	ChangeOrders []model.ChangeOrderSummary
}

// Result describes a built bill.
type Result struct {
	Snapshot   *model.Snapshot
	Financials financials.Bill
	Chart      *chart.Chart
	// AlreadyBilled lists input documents left out because an earlier bill
	// includes them.
	AlreadyBilled []string
	// Skipped counts contributions dropped for an unknown cost code.
	Skipped int

	// copied is set when the project budget was cloned from the account
	// budget and still has to be saved.
	copied *costcode.Tree
	// orders holds the change orders to store when the input defined any.
	orders []model.ChangeOrderSummary
}

// Builder builds and deletes the bills of one project.
type Builder struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder. A nil logger discards output.
func NewBuilder(st Store, cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Reserved == (financials.ReservedCodes{}) {
		cfg.Reserved = financials.DefaultReservedCodes
	}
	return &Builder{store: st, cfg: cfg, logger: logger, now: time.Now}
}

// Build computes a bill and commits it. An empty billID gets a new id.
func (b *Builder) Build(ctx context.Context, billID string, in Input) (*Result, error) {
	res, ledger, err := b.compute(ctx, billID, in)
	if err != nil {
		return nil, err
	}
	commit := store.BillCommit{
		Snapshot:     res.Snapshot,
		ChangeOrders: res.orders,
		Content:      ledger.Content(),
		Chart:        res.Chart,
	}
	if res.copied != nil {
		commit.Budget = res.copied.Data()
	}
	if err := b.store.CommitBill(ctx, commit); err != nil {
		return nil, fmt.Errorf("committing bill %s: %w", res.Snapshot.BillID, err)
	}
	if res.copied != nil {
		b.logger.Info("project budget copied from account", "project", b.cfg.ProjectID, "cost_codes", costcode.BuildRegistry(res.copied).Len())
	}
	b.logger.Info("bill built",
		"bill", res.Snapshot.BillID,
		"period", res.Snapshot.Period,
		"invoices", res.Snapshot.Summary.NumInvoices,
		"labor", res.Snapshot.Summary.NumLaborFees,
		"total", res.Snapshot.Summary.Total.StringFixed(2),
	)
	return res, nil
}

// Preview computes a bill without writing anything.
func (b *Builder) Preview(ctx context.Context, in Input) (*Result, error) {
	res, _, err := b.compute(ctx, "preview", in)
	return res, err
}

func (b *Builder) compute(ctx context.Context, billID string, in Input) (*Result, *changeorder.Ledger, error) {
	if billID == "" {
		billID = id.NewNodeID()
	}
	tree, copied, err := b.projectTree(ctx)
	if err != nil {
		return nil, nil, err
	}
	orders, err := b.store.LoadChangeOrders(ctx, b.cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading change orders: %w", err)
	}
	var merged []model.ChangeOrderSummary
	if len(in.ChangeOrders) > 0 {
		merged = mergeChangeOrders(orders, in.ChangeOrders)
		orders = merged
	}
	c, err := b.loadChart(ctx, tree)
	if err != nil {
		return nil, nil, err
	}

	invoices, labor, billed, err := b.unbilled(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if len(invoices) == 0 && len(labor) == 0 {
		return nil, nil, ErrNothingToBill
	}

	agg, err := actuals.Aggregate(invoices, labor, costcode.BuildRegistry(tree), changeorder.NewLedger(orders),
		actuals.Options{UnknownCostCode: b.cfg.Policy})
	if err != nil {
		return nil, nil, err
	}
	if agg.Skipped > 0 {
		b.logger.Warn("contributions skipped for unknown cost codes", "bill", billID, "count", agg.Skipped)
	}

	summary, fin := financials.Summarize(agg.Actuals, agg.ChangeOrderActuals, b.cfg.Rates,
		financials.Counts{InvoiceIDs: agg.InvoiceIDs, LaborFeeIDs: agg.LaborFeeIDs})

	now := b.now().UTC()
	snap := &model.Snapshot{
		BillID:                        billID,
		ProjectID:                     b.cfg.ProjectID,
		Period:                        agg.Period,
		CreatedAt:                     now,
		CurrentActuals:                agg.Actuals,
		CurrentActualsChangeOrders:    agg.ChangeOrderActuals,
		PerDocumentActuals:            agg.PerDocument,
		PerDocumentChangeOrderActuals: agg.PerDocumentChangeOrder,
		Summary:                       summary,
	}

	err = c.Apply(chart.Input{
		Tree:     tree,
		Snapshot: snap,
		Ledger:   agg.Ledger,
		Rates:    b.cfg.Rates,
		Reserved: b.cfg.Reserved,
		Now:      now,
	}, chart.Add)
	if err != nil {
		return nil, nil, err
	}

	res := &Result{
		Snapshot:      snap,
		Financials:    fin,
		Chart:         c,
		AlreadyBilled: billed,
		Skipped:       agg.Skipped,
	}
	if copied {
		res.copied = tree
	}
	if merged != nil {
		res.orders = agg.Ledger.Summaries()
	}
	return res, agg.Ledger, nil
}

// mergeChangeOrders upserts incoming definitions by id into stored. Names and
// subtotals are replaced; stored content is kept and new orders start empty.
func mergeChangeOrders(stored, incoming []model.ChangeOrderSummary) []model.ChangeOrderSummary {
	out := make([]model.ChangeOrderSummary, len(stored), len(stored)+len(incoming))
	copy(out, stored)
	byID := make(map[string]int, len(out))
	for i, co := range out {
		byID[co.UUID] = i
	}
	for _, co := range incoming {
		if i, ok := byID[co.UUID]; ok {
			out[i].Name = co.Name
			out[i].SubtotalAmt = co.SubtotalAmt
			continue
		}
		co.Content = nil
		byID[co.UUID] = len(out)
		out = append(out, co)
	}
	return out
}

// Delete reverses a bill: its actuals leave the chart, its documents leave
// the change orders and become billable again.
func (b *Builder) Delete(ctx context.Context, billID string) (*model.Snapshot, error) {
	snap, err := b.store.GetClientBillSnapshot(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("loading bill %s: %w", billID, err)
	}
	projectID := snap.ProjectID
	if projectID == "" {
		projectID = b.cfg.ProjectID
	}

	tree, err := b.store.LoadTree(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading budget: %w", err)
	}
	orders, err := b.store.LoadChangeOrders(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading change orders: %w", err)
	}
	c, err := b.store.LoadChart(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading chart: %w", err)
	}

	ledger := changeorder.NewLedger(orders)
	err = c.Apply(chart.Input{
		Tree:     tree,
		Snapshot: snap,
		Ledger:   ledger,
		Rates:    b.cfg.Rates,
		Reserved: b.cfg.Reserved,
		Now:      b.now().UTC(),
	}, chart.Subtract)
	if err != nil {
		return nil, err
	}

	docs := append(append([]string(nil), snap.Summary.InvoiceIDs...), snap.Summary.LaborFeeIDs...)
	removed := ledger.RemoveDocument(docs, nil)

	if err := b.store.CommitDelete(ctx, projectID, billID, ledger.Content(), c); err != nil {
		return nil, fmt.Errorf("committing deletion of bill %s: %w", billID, err)
	}
	b.logger.Info("bill deleted", "bill", billID, "documents", len(docs), "change_order_items", removed)
	return snap, nil
}

// projectTree loads the project budget. A project without one starts from
// a copy of the account budget; copied reports that case.
func (b *Builder) projectTree(ctx context.Context) (tree *costcode.Tree, copied bool, err error) {
	tree, err = b.store.LoadTree(ctx, b.cfg.ProjectID)
	if err == nil {
		return tree, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("loading budget: %w", err)
	}

	account, err := b.store.LoadTree(ctx, store.AccountScope)
	if err != nil {
		return nil, false, fmt.Errorf("loading account budget: %w", err)
	}
	return account.Clone(), true, nil
}

func (b *Builder) loadChart(ctx context.Context, tree *costcode.Tree) (*chart.Chart, error) {
	c, err := b.store.LoadChart(ctx, b.cfg.ProjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return chart.New(tree), nil
	case err != nil:
		return nil, fmt.Errorf("loading chart: %w", err)
	}
	return c, nil
}

// unbilled drops documents flagged as billed or included in a stored bill.
func (b *Builder) unbilled(ctx context.Context, in Input) ([]model.Invoice, []model.Labor, []string, error) {
	marks, err := b.store.BilledDocuments(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	var skipped []string
	var invoices []model.Invoice
	for _, inv := range in.Invoices {
		if _, done := marks[inv.ID]; done || inv.Billed {
			skipped = append(skipped, inv.ID)
			continue
		}
		invoices = append(invoices, inv)
	}
	var labor []model.Labor
	for _, l := range in.Labor {
		if _, done := marks[l.ID]; done || l.Billed {
			skipped = append(skipped, l.ID)
			continue
		}
		labor = append(labor, l)
	}
	return invoices, labor, skipped, nil
}
