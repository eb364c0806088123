// Package store persists budgets, bill snapshots, change orders and chart
// series in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/chart"
	"github.com/cleared-dev/b2a/internal/costcode"
	"github.com/cleared-dev/b2a/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// AccountScope is the budget scope of the account-level template tree.
// Every other scope is a project id.
const AccountScope = "account"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is a SQLite-backed persistence layer.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- budgets ---

// SaveBudget stores the budget tree of a scope.
func (s *Store) SaveBudget(ctx context.Context, scope string, data *model.CostCodesData) error {
	return s.saveBudget(ctx, s.db, scope, data)
}

func (s *Store) saveBudget(ctx context.Context, db execer, scope string, data *model.CostCodesData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding budget %s: %w", scope, err)
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO budgets (scope, data, updated_at) VALUES (?, ?, ?)`,
		scope, string(raw), s.timestamp())
	if err != nil {
		return fmt.Errorf("saving budget %s: %w", scope, err)
	}
	return nil
}

// LoadBudget returns the raw budget tree of a scope.
func (s *Store) LoadBudget(ctx context.Context, scope string) (*model.CostCodesData, error) {
	return s.loadBudget(ctx, s.db, scope)
}

func (s *Store) loadBudget(ctx context.Context, db execer, scope string) (*model.CostCodesData, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT data FROM budgets WHERE scope = ?`, scope).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %s: %w", scope, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading budget %s: %w", scope, err)
	}
	var data model.CostCodesData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decoding budget %s: %w", scope, err)
	}
	return &data, nil
}

// LoadTree loads a budget, migrates a legacy shape once and indexes it. A
// migrated tree, or one that just got node ids, is written back.
func (s *Store) LoadTree(ctx context.Context, scope string) (*costcode.Tree, error) {
	data, err := s.LoadBudget(ctx, scope)
	if err != nil {
		return nil, err
	}
	dirty := costcode.Migrate(data) || missingIDs(data.Divisions)
	tree, err := costcode.New(data)
	if err != nil {
		return nil, fmt.Errorf("indexing budget %s: %w", scope, err)
	}
	if dirty {
		if err := s.SaveBudget(ctx, scope, tree.Data()); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// missingIDs reports whether any node predates stable ids.
func missingIDs(nodes []*model.CostCodeNode) bool {
	for _, n := range nodes {
		if n.ID == "" || missingIDs(n.Children) {
			return true
		}
	}
	return false
}

// ListProjects returns the ids of every project with its own budget copy.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scope FROM budgets WHERE scope != ? ORDER BY scope`, AccountScope)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, err
		}
		ids = append(ids, scope)
	}
	return ids, rows.Err()
}

// UpdateAllProjectBudgets applies ops to the account budget and cascades
// them to every project copy. Either every budget is updated or none is.
func (s *Store) UpdateAllProjectBudgets(ctx context.Context, ops []costcode.Operation) error {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}
	scopes := append([]string{AccountScope}, projects...)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		trees := make([]*costcode.Tree, len(scopes))
		for i, scope := range scopes {
			data, err := s.loadBudget(ctx, tx, scope)
			if err != nil {
				return err
			}
			costcode.Migrate(data)
			if trees[i], err = costcode.New(data); err != nil {
				return fmt.Errorf("indexing budget %s: %w", scope, err)
			}
		}
		if err := costcode.ApplyAll(trees, ops); err != nil {
			return fmt.Errorf("applying budget operations: %w", err)
		}
		for i, scope := range scopes {
			if err := s.saveBudget(ctx, tx, scope, trees[i].Data()); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- bill snapshots ---

// BillInfo is the listing view of a stored snapshot.
type BillInfo struct {
	BillID    string
	ProjectID string
	Period    string
	CreatedAt time.Time
}

// SaveClientBillSnapshot stores a snapshot, replacing any with the same id.
func (s *Store) SaveClientBillSnapshot(ctx context.Context, snap *model.Snapshot) error {
	return s.saveSnapshot(ctx, s.db, snap)
}

func (s *Store) saveSnapshot(ctx context.Context, db execer, snap *model.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", snap.BillID, err)
	}
	created := snap.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO bill_snapshots
		(bill_id, project_id, period, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		snap.BillID, snap.ProjectID, snap.Period, created.UTC().Format(time.RFC3339), string(raw))
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", snap.BillID, err)
	}
	return nil
}

// GetClientBillSnapshot returns the snapshot of a bill.
func (s *Store) GetClientBillSnapshot(ctx context.Context, billID string) (*model.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bill_snapshots WHERE bill_id = ?`, billID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill %s: %w", billID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", billID, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", billID, err)
	}
	return &snap, nil
}

// DeleteClientBillSnapshot removes a snapshot and releases its documents.
func (s *Store) DeleteClientBillSnapshot(ctx context.Context, billID string) error {
	return s.deleteSnapshot(ctx, s.db, billID)
}

func (s *Store) deleteSnapshot(ctx context.Context, db execer, billID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM bill_snapshots WHERE bill_id = ?`, billID)
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", billID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bill %s: %w", billID, ErrNotFound)
	}
	return nil
}

// ListBills returns the project's bills, oldest first.
func (s *Store) ListBills(ctx context.Context, projectID string) ([]BillInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bill_id, project_id, period, created_at
		FROM bill_snapshots WHERE project_id = ? ORDER BY created_at, bill_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bills []BillInfo
	for rows.Next() {
		var b BillInfo
		var period sql.NullString
		var created string
		if err := rows.Scan(&b.BillID, &b.ProjectID, &period, &created); err != nil {
			return nil, err
		}
		b.Period = period.String
		b.CreatedAt, _ = time.Parse(time.RFC3339, created)
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// BilledDocuments returns document id -> bill id for every document already
// included in a stored bill.
func (s *Store) BilledDocuments(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document_id, bill_id FROM billed_documents`)
	if err != nil {
		return nil, fmt.Errorf("listing billed documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var docID, billID string
		if err := rows.Scan(&docID, &billID); err != nil {
			return nil, err
		}
		out[docID] = billID
	}
	return out, rows.Err()
}

// --- change orders ---

// SaveChangeOrders replaces the change orders of a project.
func (s *Store) SaveChangeOrders(ctx context.Context, projectID string, orders []model.ChangeOrderSummary) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveChangeOrders(ctx, tx, projectID, orders)
	})
}

func (s *Store) saveChangeOrders(ctx context.Context, db execer, projectID string, orders []model.ChangeOrderSummary) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM change_orders WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clearing change orders: %w", err)
	}
	for i, co := range orders {
		raw, err := json.Marshal(contentOrEmpty(co.Content))
		if err != nil {
			return fmt.Errorf("encoding change order %s: %w", co.UUID, err)
		}
		_, err = db.ExecContext(ctx, `INSERT INTO change_orders
			(project_id, uuid, position, name, subtotal, content) VALUES (?, ?, ?, ?, ?, ?)`,
			projectID, co.UUID, i, co.Name, co.SubtotalAmt.String(), string(raw))
		if err != nil {
			return fmt.Errorf("saving change order %s: %w", co.UUID, err)
		}
	}
	return nil
}

// LoadChangeOrders returns a project's change orders in saved order.
func (s *Store) LoadChangeOrders(ctx context.Context, projectID string) ([]model.ChangeOrderSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, name, subtotal, content
		FROM change_orders WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading change orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []model.ChangeOrderSummary
	for rows.Next() {
		var co model.ChangeOrderSummary
		var subtotal, content string
		if err := rows.Scan(&co.UUID, &co.Name, &subtotal, &content); err != nil {
			return nil, err
		}
		if co.SubtotalAmt, err = decimal.NewFromString(subtotal); err != nil {
			return nil, fmt.Errorf("change order %s subtotal: %w", co.UUID, err)
		}
		if err := json.Unmarshal([]byte(content), &co.Content); err != nil {
			return nil, fmt.Errorf("decoding change order %s: %w", co.UUID, err)
		}
		orders = append(orders, co)
	}
	return orders, rows.Err()
}

// UpdateChangeOrderContent replaces the content map of each listed change
// order. Change orders not in content are left alone.
func (s *Store) UpdateChangeOrderContent(ctx context.Context, projectID string, content map[string]map[string]model.ChangeOrderContentItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateContent(ctx, tx, projectID, content)
	})
}

func (s *Store) updateContent(ctx context.Context, db execer, projectID string, content map[string]map[string]model.ChangeOrderContentItem) error {
	for coID, items := range content {
		raw, err := json.Marshal(contentOrEmpty(items))
		if err != nil {
			return fmt.Errorf("encoding change order %s: %w", coID, err)
		}
		res, err := db.ExecContext(ctx, `UPDATE change_orders SET content = ? WHERE project_id = ? AND uuid = ?`,
			string(raw), projectID, coID)
		if err != nil {
			return fmt.Errorf("updating change order %s: %w", coID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("change order %s: %w", coID, ErrNotFound)
		}
	}
	return nil
}

func contentOrEmpty(m map[string]model.ChangeOrderContentItem) map[string]model.ChangeOrderContentItem {
	if m == nil {
		return map[string]model.ChangeOrderContentItem{}
	}
	return m
}

// --- charts ---

// SaveChart stores a project's chart series.
func (s *Store) SaveChart(ctx context.Context, projectID string, c *chart.Chart) error {
	return s.saveChart(ctx, s.db, projectID, c)
}

func (s *Store) saveChart(ctx context.Context, db execer, projectID string, c *chart.Chart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding chart: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO charts (project_id, data, updated_at) VALUES (?, ?, ?)`,
		projectID, string(raw), s.timestamp())
	if err != nil {
		return fmt.Errorf("saving chart: %w", err)
	}
	return nil
}

// LoadChart returns a project's chart series.
func (s *Store) LoadChart(ctx context.Context, projectID string) (*chart.Chart, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM charts WHERE project_id = ?`, projectID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chart %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading chart: %w", err)
	}
	var c chart.Chart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decoding chart: %w", err)
	}
	return &c, nil
}

// --- bill commits ---

// BillCommit is everything a successful bill build writes.
type BillCommit struct {
	Snapshot *model.Snapshot
	// Budget, when set, is the project budget to store with the bill.
	Budget *model.CostCodesData
	// ChangeOrders, when set, replaces the project's change orders before
	// Content is applied.
	ChangeOrders []model.ChangeOrderSummary
	// Content is the change order content after the build, keyed by change
	// order id.
	Content map[string]map[string]model.ChangeOrderContentItem
	Chart   *chart.Chart
}

// CommitBill writes a built bill in one transaction: the project budget and
// change order definitions when given, the snapshot, the billed-document
// marks, the change order content and the chart.
func (s *Store) CommitBill(ctx context.Context, c BillCommit) error {
	snap := c.Snapshot
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if c.Budget != nil {
			if err := s.saveBudget(ctx, tx, snap.ProjectID, c.Budget); err != nil {
				return err
			}
		}
		if c.ChangeOrders != nil {
			if err := s.saveChangeOrders(ctx, tx, snap.ProjectID, c.ChangeOrders); err != nil {
				return err
			}
		}
		if err := s.saveSnapshot(ctx, tx, snap); err != nil {
			return err
		}
		marks := []struct {
			ids  []string
			kind string
		}{
			{snap.Summary.InvoiceIDs, "invoice"},
			{snap.Summary.LaborFeeIDs, "labor"},
		}
		for _, m := range marks {
			for _, docID := range m.ids {
				_, err := tx.ExecContext(ctx, `INSERT INTO billed_documents (document_id, bill_id, kind) VALUES (?, ?, ?)`,
					docID, snap.BillID, m.kind)
				if err != nil {
					return fmt.Errorf("marking %s %s billed: %w", m.kind, docID, err)
				}
			}
		}
		if err := s.updateContent(ctx, tx, snap.ProjectID, c.Content); err != nil {
			return err
		}
		return s.saveChart(ctx, tx, snap.ProjectID, c.Chart)
	})
}

// CommitDelete removes a bill and stores the chart with the bill subtracted,
// in one transaction. The bill's documents become unbilled again.
func (s *Store) CommitDelete(ctx context.Context, projectID, billID string, content map[string]map[string]model.ChangeOrderContentItem, c *chart.Chart) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.deleteSnapshot(ctx, tx, billID); err != nil {
			return err
		}
		if err := s.updateContent(ctx, tx, projectID, content); err != nil {
			return err
		}
		return s.saveChart(ctx, tx, projectID, c)
	})
}
