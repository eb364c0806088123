// Package costcode holds the hierarchical cost-code budget: the tree, its
// flattened registry, account-to-project cascading edits and CSV import.
package costcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/id"
	"github.com/cleared-dev/b2a/internal/model"
)

var (
	// ErrNotFound is returned when a path, id or number addresses no node.
	ErrNotFound = errors.New("cost code not found")
	// ErrDuplicateNumber is returned when a number is already used in the tree.
	ErrDuplicateNumber = errors.New("duplicate cost code number")
)

// Path locates a node by sibling indices from the root. Paths are
// positional: reordering or removing an earlier sibling invalidates them.
type Path []int

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}

// Depth is 0 for a division.
func (p Path) Depth() int {
	return len(p) - 1
}

// Ancestors returns the paths of every proper ancestor, outermost first.
func (p Path) Ancestors() []Path {
	out := make([]Path, 0, len(p))
	for i := 1; i < len(p); i++ {
		out = append(out, append(Path(nil), p[:i]...))
	}
	return out
}

// CompareNumbers orders cost-code numbers numerically, falling back to
// string order when either side is not a decimal or both are numerically
// equal ("1.1" vs "1.10").
func CompareNumbers(a, b string) int {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA == nil && errB == nil {
		if c := da.Cmp(db); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// InsertSorted inserts node before the first sibling whose number exceeds
// its own and returns the new slice and the insertion index.
func InsertSorted(siblings []*model.CostCodeNode, node *model.CostCodeNode) ([]*model.CostCodeNode, int) {
	i := 0
	for i < len(siblings) && CompareNumbers(siblings[i].Number, node.Number) <= 0 {
		i++
	}
	siblings = append(siblings, nil)
	copy(siblings[i+1:], siblings[i:])
	siblings[i] = node
	return siblings, i
}

// Tree is a cost-code tree with a stable id index. Structural edits keep
// every sibling list in ascending number order.
type Tree struct {
	data     *model.CostCodesData
	byID     map[string]*model.CostCodeNode
	byNumber map[string]*model.CostCodeNode
	parent   map[string]*model.CostCodeNode // nil entry for divisions
}

// New indexes data, assigning ids to nodes that lack one. Numbers must be
// unique across the tree.
func New(data *model.CostCodesData) (*Tree, error) {
	if data == nil {
		data = &model.CostCodesData{}
	}
	t := &Tree{data: data}
	if err := t.reindex(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) reindex() error {
	t.byID = make(map[string]*model.CostCodeNode)
	t.byNumber = make(map[string]*model.CostCodeNode)
	t.parent = make(map[string]*model.CostCodeNode)
	var walk func(parent *model.CostCodeNode, nodes []*model.CostCodeNode) error
	walk = func(parent *model.CostCodeNode, nodes []*model.CostCodeNode) error {
		for _, n := range nodes {
			if err := t.index(parent, n); err != nil {
				return err
			}
			if err := walk(n, n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(nil, t.data.Divisions)
}

func (t *Tree) index(parent, n *model.CostCodeNode) error {
	if _, dup := t.byNumber[n.Number]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateNumber, n.Number)
	}
	if n.ID == "" {
		n.ID = id.NewNodeID()
	}
	t.byID[n.ID] = n
	t.byNumber[n.Number] = n
	t.parent[n.ID] = parent
	return nil
}

func (t *Tree) unindex(n *model.CostCodeNode) {
	delete(t.byID, n.ID)
	delete(t.byNumber, n.Number)
	delete(t.parent, n.ID)
	for _, c := range n.Children {
		t.unindex(c)
	}
}

// checkNumbers reports a duplicate if any number in the subtree is in use.
func (t *Tree) checkNumbers(n *model.CostCodeNode) error {
	seen := make(map[string]bool)
	var walk func(*model.CostCodeNode) error
	walk = func(n *model.CostCodeNode) error {
		if _, dup := t.byNumber[n.Number]; dup || seen[n.Number] {
			return fmt.Errorf("%w: %s", ErrDuplicateNumber, n.Number)
		}
		seen[n.Number] = true
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(n)
}

func (t *Tree) indexSubtree(parent, n *model.CostCodeNode) {
	// Numbers were checked by checkNumbers, so index cannot fail here.
	_ = t.index(parent, n)
	for _, c := range n.Children {
		t.indexSubtree(n, c)
	}
}

// Data returns the underlying tree for persistence.
func (t *Tree) Data() *model.CostCodesData {
	return t.data
}

// Divisions returns the top-level nodes.
func (t *Tree) Divisions() []*model.CostCodeNode {
	return t.data.Divisions
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.byID)
}

// Node returns a node by its stable id.
func (t *Tree) Node(nodeID string) (*model.CostCodeNode, bool) {
	n, ok := t.byID[nodeID]
	return n, ok
}

// NodeByNumber returns a node by its cost-code number.
func (t *Tree) NodeByNumber(number string) (*model.CostCodeNode, bool) {
	n, ok := t.byNumber[number]
	return n, ok
}

// Parent returns the parent of a node, or nil for divisions and unknown ids.
func (t *Tree) Parent(nodeID string) *model.CostCodeNode {
	return t.parent[nodeID]
}

// NodeByPath walks the tree index by index. It reports false if any index
// is out of range.
func (t *Tree) NodeByPath(path Path) (*model.CostCodeNode, bool) {
	if len(path) == 0 {
		return nil, false
	}
	siblings := t.data.Divisions
	var n *model.CostCodeNode
	for _, idx := range path {
		if idx < 0 || idx >= len(siblings) {
			return nil, false
		}
		n = siblings[idx]
		siblings = n.Children
	}
	return n, true
}

// PathOf returns the current positional path of a node.
func (t *Tree) PathOf(nodeID string) (Path, bool) {
	n, ok := t.byID[nodeID]
	if !ok {
		return nil, false
	}
	var rev Path
	for n != nil {
		p := t.parent[n.ID]
		siblings := t.data.Divisions
		if p != nil {
			siblings = p.Children
		}
		idx := indexOf(siblings, n)
		if idx < 0 {
			return nil, false
		}
		rev = append(rev, idx)
		n = p
	}
	path := make(Path, len(rev))
	for i, idx := range rev {
		path[len(rev)-1-i] = idx
	}
	return path, true
}

func indexOf(nodes []*model.CostCodeNode, n *model.CostCodeNode) int {
	for i, s := range nodes {
		if s == n {
			return i
		}
	}
	return -1
}

// siblingsOf returns a pointer to the sibling list a path's last index
// refers into.
func (t *Tree) siblingsOf(path Path) (*[]*model.CostCodeNode, *model.CostCodeNode, error) {
	if len(path) == 0 {
		return nil, nil, fmt.Errorf("%w: empty path", ErrNotFound)
	}
	if len(path) == 1 {
		return &t.data.Divisions, nil, nil
	}
	parent, ok := t.NodeByPath(path[:len(path)-1])
	if !ok {
		return nil, nil, fmt.Errorf("%w: path %s", ErrNotFound, path)
	}
	return &parent.Children, parent, nil
}

// AddDivision inserts a new top-level node and returns its path.
func (t *Tree) AddDivision(n *model.CostCodeNode) (Path, error) {
	if err := t.checkNumbers(n); err != nil {
		return nil, err
	}
	var idx int
	t.data.Divisions, idx = InsertSorted(t.data.Divisions, n)
	t.indexSubtree(nil, n)
	return Path{idx}, nil
}

// AddCostCode inserts n under the node at parentPath and returns its path.
func (t *Tree) AddCostCode(parentPath Path, n *model.CostCodeNode) (Path, error) {
	parent, ok := t.NodeByPath(parentPath)
	if !ok {
		return nil, fmt.Errorf("%w: path %s", ErrNotFound, parentPath)
	}
	return t.addUnder(parent, parentPath, n)
}

func (t *Tree) addUnder(parent *model.CostCodeNode, parentPath Path, n *model.CostCodeNode) (Path, error) {
	if err := t.checkNumbers(n); err != nil {
		return nil, err
	}
	var idx int
	parent.Children, idx = InsertSorted(parent.Children, n)
	t.indexSubtree(parent, n)
	return append(append(Path(nil), parentPath...), idx), nil
}

// RemoveCostCode splices the node at path, with its subtree, out of the tree.
func (t *Tree) RemoveCostCode(path Path) (*model.CostCodeNode, error) {
	siblings, _, err := t.siblingsOf(path)
	if err != nil {
		return nil, err
	}
	idx := path[len(path)-1]
	if idx < 0 || idx >= len(*siblings) {
		return nil, fmt.Errorf("%w: path %s", ErrNotFound, path)
	}
	n := (*siblings)[idx]
	*siblings = append((*siblings)[:idx], (*siblings)[idx+1:]...)
	t.unindex(n)
	return n, nil
}

// EditCostCode renames and renumbers the node at path. A new number moves
// the node to its sorted position among its siblings; the new path is
// returned.
func (t *Tree) EditCostCode(path Path, name, number string) (Path, error) {
	siblings, _, err := t.siblingsOf(path)
	if err != nil {
		return nil, err
	}
	idx := path[len(path)-1]
	if idx < 0 || idx >= len(*siblings) {
		return nil, fmt.Errorf("%w: path %s", ErrNotFound, path)
	}
	n := (*siblings)[idx]
	if number == "" || number == n.Number {
		n.Name = name
		return path, nil
	}
	if _, dup := t.byNumber[number]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNumber, number)
	}
	n.Name = name
	delete(t.byNumber, n.Number)
	n.Number = number
	t.byNumber[number] = n

	rest := append((*siblings)[:idx:idx], (*siblings)[idx+1:]...)
	var newIdx int
	*siblings, newIdx = InsertSorted(rest, n)
	newPath := append(append(Path(nil), path[:len(path)-1]...), newIdx)
	return newPath, nil
}

// Visitor is called by Traverse with the node, its path and the paths of
// its ancestors (outermost first).
type Visitor func(n *model.CostCodeNode, path Path, ancestors []Path)

// Traverse walks the tree depth-first in sibling order. Only leaf cost codes
// are visited unless visitAll is set; a division without children is not a
// cost code.
func (t *Tree) Traverse(visit Visitor, visitAll bool) {
	var walk func(nodes []*model.CostCodeNode, prefix Path)
	walk = func(nodes []*model.CostCodeNode, prefix Path) {
		for i, n := range nodes {
			path := append(append(Path(nil), prefix...), i)
			if visitAll || (n.IsLeaf() && len(prefix) > 0) {
				visit(n, path, path.Ancestors())
			}
			walk(n.Children, path)
		}
	}
	walk(t.data.Divisions, nil)
}

// Clone returns a deep copy of the tree. Node ids are preserved.
func (t *Tree) Clone() *Tree {
	data := *t.data
	data.Divisions = cloneNodes(t.data.Divisions)
	c, err := New(&data)
	if err != nil {
		// The source tree is already indexed without duplicates.
		panic(err)
	}
	return c
}

func cloneNodes(nodes []*model.CostCodeNode) []*model.CostCodeNode {
	if nodes == nil {
		return nil
	}
	out := make([]*model.CostCodeNode, len(nodes))
	for i, n := range nodes {
		c := *n
		c.Children = cloneNodes(n.Children)
		c.Items = cloneNodes(n.Items)
		out[i] = &c
	}
	return out
}

// BudgetTotal sums the value of every leaf.
func (t *Tree) BudgetTotal() decimal.Decimal {
	sum := decimal.Zero
	t.Traverse(func(n *model.CostCodeNode, _ Path, _ []Path) {
		sum = sum.Add(n.Value)
	}, false)
	return sum
}
