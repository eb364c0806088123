package costcode

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/b2a/internal/model"
)

func node(number, name, value string, children ...*model.CostCodeNode) *model.CostCodeNode {
	n := &model.CostCodeNode{Number: number, Name: name, Children: children}
	if value != "" {
		n.Value = decimal.RequireFromString(value)
	}
	return n
}

// sampleTree:
//
//	1 General
//	  1.1 Permits        1000
//	  1.2 Supervision    2500
//	2 Sitework
//	  2.1 Excavation
//	    2.11 Rough grade  4000
//	    2.12 Fine grade   1500
func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := New(&model.CostCodesData{
		Updated: true,
		Divisions: []*model.CostCodeNode{
			node("1", "General", "",
				node("1.1", "Permits", "1000"),
				node("1.2", "Supervision", "2500"),
			),
			node("2", "Sitework", "",
				node("2.1", "Excavation", "",
					node("2.11", "Rough grade", "4000"),
					node("2.12", "Fine grade", "1500"),
				),
			),
		},
	})
	require.NoError(t, err)
	return tree
}

func numbers(nodes []*model.CostCodeNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Number
	}
	return out
}

func TestCompareNumbers(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"1.2", "1.15", 1},
		{"10", "9", 1},
		{"1.1", "1.10", -1},
		{"A-100", "A-20", -1},
		{"3", "3", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareNumbers(tt.a, tt.b), "CompareNumbers(%q, %q)", tt.a, tt.b)
	}
}

func TestInsertSorted(t *testing.T) {
	var siblings []*model.CostCodeNode
	for _, n := range []string{"3", "1", "10", "2", "2.5"} {
		siblings, _ = InsertSorted(siblings, node(n, "", ""))
	}
	assert.Equal(t, []string{"1", "2", "2.5", "3", "10"}, numbers(siblings))

	// Equal numbers land after existing ones.
	siblings, idx := InsertSorted(siblings, &model.CostCodeNode{Number: "2", Name: "dup"})
	assert.Equal(t, 2, idx)
	assert.Equal(t, "dup", siblings[2].Name)
}

func TestNew_AssignsIDsAndIndexes(t *testing.T) {
	tree := sampleTree(t)
	assert.Equal(t, 7, tree.Len())

	n, ok := tree.NodeByNumber("2.12")
	require.True(t, ok)
	assert.NotEmpty(t, n.ID)

	byID, ok := tree.Node(n.ID)
	require.True(t, ok)
	assert.Same(t, n, byID)
	assert.Equal(t, "2.1", tree.Parent(n.ID).Number)
}

func TestNew_DuplicateNumber(t *testing.T) {
	_, err := New(&model.CostCodesData{Divisions: []*model.CostCodeNode{
		node("1", "A", "", node("1.1", "x", "1")),
		node("2", "B", "", node("1.1", "y", "1")),
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestNodeByPath(t *testing.T) {
	tree := sampleTree(t)

	n, ok := tree.NodeByPath(Path{1, 0, 1})
	require.True(t, ok)
	assert.Equal(t, "2.12", n.Number)

	for _, p := range []Path{{}, {2}, {0, 5}, {1, 0, 1, 0}, {-1}} {
		_, ok := tree.NodeByPath(p)
		assert.False(t, ok, "path %v should not resolve", p)
	}
}

func TestPathOf(t *testing.T) {
	tree := sampleTree(t)
	n, _ := tree.NodeByNumber("2.11")
	path, ok := tree.PathOf(n.ID)
	require.True(t, ok)
	assert.Equal(t, Path{1, 0, 0}, path)
	assert.Equal(t, "1.0.0", path.String())
	assert.Equal(t, 2, path.Depth())
	assert.Equal(t, []Path{{1}, {1, 0}}, path.Ancestors())

	_, ok = tree.PathOf("missing")
	assert.False(t, ok)
}

func TestAddDivision(t *testing.T) {
	tree := sampleTree(t)
	path, err := tree.AddDivision(node("1.5", "Design", ""))
	require.NoError(t, err)
	assert.Equal(t, Path{1}, path)
	assert.Equal(t, []string{"1", "1.5", "2"}, numbers(tree.Divisions()))

	_, err = tree.AddDivision(node("2", "Again", ""))
	assert.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestAddCostCode(t *testing.T) {
	tree := sampleTree(t)
	path, err := tree.AddCostCode(Path{0}, node("1.15", "Insurance", "300"))
	require.NoError(t, err)
	assert.Equal(t, Path{0, 1}, path)

	general, _ := tree.NodeByPath(Path{0})
	assert.Equal(t, []string{"1.1", "1.15", "1.2"}, numbers(general.Children))

	n, ok := tree.NodeByNumber("1.15")
	require.True(t, ok)
	assert.NotEmpty(t, n.ID)

	_, err = tree.AddCostCode(Path{9}, node("9.1", "x", "1"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.AddCostCode(Path{0}, node("2.11", "dup", "1"))
	assert.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestRemoveCostCode(t *testing.T) {
	tree := sampleTree(t)
	removed, err := tree.RemoveCostCode(Path{1, 0})
	require.NoError(t, err)
	assert.Equal(t, "2.1", removed.Number)

	_, ok := tree.NodeByNumber("2.11")
	assert.False(t, ok, "subtree must be unindexed")
	assert.Equal(t, 4, tree.Len())

	_, err = tree.RemoveCostCode(Path{1, 3})
	assert.ErrorIs(t, err, ErrNotFound)

	// The number is free again.
	_, err = tree.AddCostCode(Path{1}, node("2.11", "Rough grade", "10"))
	assert.NoError(t, err)
}

func TestEditCostCode(t *testing.T) {
	tree := sampleTree(t)

	path, err := tree.EditCostCode(Path{0, 0}, "Permits & Fees", "")
	require.NoError(t, err)
	assert.Equal(t, Path{0, 0}, path)
	n, _ := tree.NodeByNumber("1.1")
	assert.Equal(t, "Permits & Fees", n.Name)

	// Renumbering re-sorts among siblings.
	path, err = tree.EditCostCode(Path{0, 0}, "Permits", "1.3")
	require.NoError(t, err)
	assert.Equal(t, Path{0, 1}, path)
	general, _ := tree.NodeByPath(Path{0})
	assert.Equal(t, []string{"1.2", "1.3"}, numbers(general.Children))
	_, ok := tree.NodeByNumber("1.1")
	assert.False(t, ok)

	_, err = tree.EditCostCode(Path{0, 0}, "x", "2.12")
	assert.ErrorIs(t, err, ErrDuplicateNumber)

	_, err = tree.EditCostCode(Path{4, 4}, "x", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTraverse_LeavesOnly(t *testing.T) {
	tree := sampleTree(t)
	var visited []string
	var ancestors [][]Path
	tree.Traverse(func(n *model.CostCodeNode, _ Path, anc []Path) {
		visited = append(visited, n.Number)
		ancestors = append(ancestors, anc)
	}, false)
	assert.Equal(t, []string{"1.1", "1.2", "2.11", "2.12"}, visited)
	assert.Equal(t, []Path{{1}, {1, 0}}, ancestors[2])
}

func TestTraverse_VisitAll(t *testing.T) {
	tree := sampleTree(t)
	var visited []string
	tree.Traverse(func(n *model.CostCodeNode, _ Path, _ []Path) {
		visited = append(visited, n.Number)
	}, true)
	assert.Equal(t, []string{"1", "1.1", "1.2", "2", "2.1", "2.11", "2.12"}, visited)
}

func TestClone_Independent(t *testing.T) {
	tree := sampleTree(t)
	c := tree.Clone()

	_, err := c.RemoveCostCode(Path{0})
	require.NoError(t, err)

	assert.Len(t, tree.Divisions(), 2)
	assert.Len(t, c.Divisions(), 1)

	orig, _ := tree.NodeByNumber("2.11")
	cloned, _ := c.NodeByNumber("2.11")
	assert.Equal(t, orig.ID, cloned.ID)
	assert.NotSame(t, orig, cloned)
}

func TestBudgetTotal(t *testing.T) {
	tree := sampleTree(t)
	assert.Equal(t, "9000.00", tree.BudgetTotal().StringFixed(2))
}
