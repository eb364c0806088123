package costcode

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/model"
)

// Entry is the registry record for one leaf cost code.
type Entry struct {
	Code        string
	Name        string
	Value       decimal.Decimal
	NodeID      string
	Path        Path
	Ancestors   []Path
	AncestorIDs []string // outermost first
}

// Registry provides O(1) lookup of leaf cost codes. It is derived from a
// Tree and must be rebuilt after structural edits.
type Registry struct {
	entries []Entry
	byCode  map[string]Entry
}

// BuildRegistry flattens every leaf of the tree in one traversal.
func BuildRegistry(t *Tree) *Registry {
	r := &Registry{byCode: make(map[string]Entry)}
	t.Traverse(func(n *model.CostCodeNode, path Path, ancestors []Path) {
		ids := make([]string, 0, len(ancestors))
		for _, a := range ancestors {
			if an, ok := t.NodeByPath(a); ok {
				ids = append(ids, an.ID)
			}
		}
		e := Entry{
			Code:        n.Number,
			Name:        n.Name,
			Value:       n.Value,
			NodeID:      n.ID,
			Path:        path,
			Ancestors:   ancestors,
			AncestorIDs: ids,
		}
		r.entries = append(r.entries, e)
		r.byCode[n.Number] = e
	}, false)
	return r
}

// Get returns the entry for a cost code.
func (r *Registry) Get(code string) (Entry, bool) {
	e, ok := r.byCode[code]
	return e, ok
}

// Exists reports whether a cost code is a known leaf.
func (r *Registry) Exists(code string) bool {
	_, ok := r.byCode[code]
	return ok
}

// All returns entries in tree order.
func (r *Registry) All() []Entry {
	return r.entries
}

// Len returns the number of leaf cost codes.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Codes returns every cost code in ascending number order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		codes = append(codes, e.Code)
	}
	sort.Slice(codes, func(i, j int) bool {
		return CompareNumbers(codes[i], codes[j]) < 0
	})
	return codes
}
