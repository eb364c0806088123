// Package changeorder tracks which documents and lines are attributed to
// which change order.
package changeorder

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/id"
	"github.com/cleared-dev/b2a/internal/model"
)

// ErrUnknownChangeOrder is returned when an operation names a change order
// id the ledger does not hold.
var ErrUnknownChangeOrder = errors.New("unknown change order")

// ConsistencyError rejects a document that carries a change order both on
// the whole document and on one of its lines.
type ConsistencyError struct {
	DocumentID  string
	UserMessage string
}

func (e ConsistencyError) Error() string {
	return fmt.Sprintf("document %s: %s", e.DocumentID, e.UserMessage)
}

// LookupError means a change order reference resolved to nothing. Inputs are
// expected to only reference existing change orders, so this indicates bad
// upstream data rather than a user mistake.
type LookupError struct {
	Ref string
}

func (e LookupError) Error() string {
	return fmt.Sprintf("change order %q does not exist", e.Ref)
}

// Document is the part of an invoice or labor record the ledger inspects.
type Document interface {
	DocumentID() string
	DocumentChangeOrder() *model.ChangeOrderRef
	LineChangeOrders() []*model.ChangeOrderRef
}

// ValidateExclusivity fails if doc has a whole-document change order and any
// of its lines also has one.
func ValidateExclusivity(doc Document) error {
	if !doc.DocumentChangeOrder().IsSet() {
		return nil
	}
	if len(doc.LineChangeOrders()) == 0 {
		return nil
	}
	return ConsistencyError{
		DocumentID: doc.DocumentID(),
		UserMessage: fmt.Sprintf("change order %s is set on the whole document and on its line items; clear one of them",
			doc.DocumentChangeOrder()),
	}
}

// Ledger holds the change orders of one project keyed by id, in the order
// they were loaded.
type Ledger struct {
	orders map[string]*model.ChangeOrderSummary
	ids    []string
}

// NewLedger copies summaries into a ledger.
func NewLedger(summaries []model.ChangeOrderSummary) *Ledger {
	l := &Ledger{orders: make(map[string]*model.ChangeOrderSummary, len(summaries))}
	for _, s := range summaries {
		l.add(s)
	}
	return l
}

func (l *Ledger) add(s model.ChangeOrderSummary) {
	c := s
	c.Content = maps.Clone(s.Content)
	if c.Content == nil {
		c.Content = make(map[string]model.ChangeOrderContentItem)
	}
	if _, exists := l.orders[c.UUID]; !exists {
		l.ids = append(l.ids, c.UUID)
	}
	l.orders[c.UUID] = &c
}

// Len returns the number of change orders.
func (l *Ledger) Len() int {
	return len(l.ids)
}

// IDs returns change order ids in load order.
func (l *Ledger) IDs() []string {
	return slices.Clone(l.ids)
}

// Get returns a change order by id.
func (l *Ledger) Get(changeOrderID string) (*model.ChangeOrderSummary, bool) {
	co, ok := l.orders[changeOrderID]
	return co, ok
}

// Resolve returns the id of the change order ref points at, matching by id
// first and then by name.
func (l *Ledger) Resolve(ref *model.ChangeOrderRef) (string, error) {
	if !ref.IsSet() {
		return "", LookupError{}
	}
	if ref.ID != "" {
		if _, ok := l.orders[ref.ID]; ok {
			return ref.ID, nil
		}
	}
	if ref.Name != "" {
		for _, coID := range l.ids {
			if l.orders[coID].Name == ref.Name {
				return coID, nil
			}
		}
	}
	return "", LookupError{Ref: ref.String()}
}

// Assign upserts item under key in a change order.
func (l *Ledger) Assign(changeOrderID, key string, item model.ChangeOrderContentItem) error {
	co, ok := l.orders[changeOrderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChangeOrder, changeOrderID)
	}
	co.Content[key] = item
	return nil
}

// Reassign moves key from one change order to another. Both change orders
// are checked before anything is changed.
func (l *Ledger) Reassign(oldID, newID, key string, item model.ChangeOrderContentItem) error {
	from, ok := l.orders[oldID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChangeOrder, oldID)
	}
	to, ok := l.orders[newID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChangeOrder, newID)
	}
	delete(from.Content, key)
	to.Content[key] = item
	return nil
}

// Unassign deletes key from a change order. Unknown change orders and keys
// are ignored.
func (l *Ledger) Unassign(changeOrderID, key string) {
	if co, ok := l.orders[changeOrderID]; ok {
		delete(co.Content, key)
	}
}

// RemoveDocument deletes every content entry whose document segment is one
// of documentIDs. If changeOrderIDs is empty every change order is scanned.
// It returns the number of entries removed.
func (l *Ledger) RemoveDocument(documentIDs, changeOrderIDs []string) int {
	docs := make(map[string]bool, len(documentIDs))
	for _, d := range documentIDs {
		docs[d] = true
	}
	if len(changeOrderIDs) == 0 {
		changeOrderIDs = l.ids
	}

	removed := 0
	for _, coID := range changeOrderIDs {
		co, ok := l.orders[coID]
		if !ok {
			continue
		}
		for key := range co.Content {
			if docs[id.DocumentOf(key)] {
				delete(co.Content, key)
				removed++
			}
		}
	}
	return removed
}

// Total sums the content of one change order.
func (l *Ledger) Total(changeOrderID string) decimal.Decimal {
	sum := decimal.Zero
	co, ok := l.orders[changeOrderID]
	if !ok {
		return sum
	}
	for _, item := range co.Content {
		sum = sum.Add(item.TotalAmt)
	}
	return sum
}

// Content returns a copy of each change order's content map keyed by change
// order id, in the shape persisted by updateChangeOrderContent.
func (l *Ledger) Content() map[string]map[string]model.ChangeOrderContentItem {
	out := make(map[string]map[string]model.ChangeOrderContentItem, len(l.orders))
	for coID, co := range l.orders {
		out[coID] = maps.Clone(co.Content)
	}
	return out
}

// Summaries returns copies of the change orders in load order.
func (l *Ledger) Summaries() []model.ChangeOrderSummary {
	out := make([]model.ChangeOrderSummary, 0, len(l.ids))
	for _, coID := range l.ids {
		c := *l.orders[coID]
		c.Content = maps.Clone(c.Content)
		out = append(out, c)
	}
	return out
}

// Clone returns an independent copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	return NewLedger(l.Summaries())
}
