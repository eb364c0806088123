package costcode

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/b2a/internal/model"
)

func TestBuildRegistry(t *testing.T) {
	tree := sampleTree(t)
	reg := BuildRegistry(tree)

	assert.Equal(t, 4, reg.Len())
	assert.True(t, reg.Exists("1.1"))
	assert.False(t, reg.Exists("1"), "branches are not registered")
	assert.False(t, reg.Exists("9.9"))

	e, ok := reg.Get("2.12")
	require.True(t, ok)
	assert.Equal(t, "Fine grade", e.Name)
	assert.Equal(t, "1500.00", e.Value.StringFixed(2))
	assert.Equal(t, Path{1, 0, 1}, e.Path)
	assert.Equal(t, []Path{{1}, {1, 0}}, e.Ancestors)

	div, _ := tree.NodeByNumber("2")
	sub, _ := tree.NodeByNumber("2.1")
	assert.Equal(t, []string{div.ID, sub.ID}, e.AncestorIDs)
}

func TestBuildRegistry_EmptyDivision(t *testing.T) {
	tree := sampleTree(t)
	_, err := tree.AddDivision(&model.CostCodeNode{Number: "3", Name: "Landscaping", Value: decimal.NewFromInt(500)})
	require.NoError(t, err)

	reg := BuildRegistry(tree)
	assert.False(t, reg.Exists("3"), "a division without cost codes is not billable")
	assert.Equal(t, 4, reg.Len())
	assert.Equal(t, "9000.00", tree.BudgetTotal().StringFixed(2))

	_, err = tree.AddCostCode(Path{2}, &model.CostCodeNode{Number: "3.1", Name: "Planting", Value: decimal.NewFromInt(700)})
	require.NoError(t, err)
	reg = BuildRegistry(tree)
	assert.True(t, reg.Exists("3.1"))
	assert.False(t, reg.Exists("3"))
}

func TestBuildRegistry_Idempotent(t *testing.T) {
	tree := sampleTree(t)
	a := BuildRegistry(tree)
	b := BuildRegistry(tree)
	assert.Equal(t, a.All(), b.All())
	assert.Equal(t, a.Codes(), b.Codes())
}

func TestRegistry_RebuildAfterEdit(t *testing.T) {
	tree := sampleTree(t)
	reg := BuildRegistry(tree)
	require.True(t, reg.Exists("1.2"))

	_, err := tree.RemoveCostCode(Path{0, 1})
	require.NoError(t, err)
	_, err = tree.AddCostCode(Path{0}, &model.CostCodeNode{Number: "1.05", Name: "Survey"})
	require.NoError(t, err)

	reg = BuildRegistry(tree)
	assert.False(t, reg.Exists("1.2"))
	e, ok := reg.Get("1.1")
	require.True(t, ok)
	assert.Equal(t, Path{0, 1}, e.Path, "positional path shifts after insert")
	assert.Equal(t, []string{"1.05", "1.1", "2.11", "2.12"}, reg.Codes())
}

func TestMigrate_LegacyShape(t *testing.T) {
	data := &model.CostCodesData{
		Divisions: []*model.CostCodeNode{
			{Number: "2", Name: "Sitework", Children: []*model.CostCodeNode{
				{Number: "2.1", Name: "Excavation", Items: []*model.CostCodeNode{
					node("2.12", "Fine grade", "1500"),
					node("2.11", "Rough grade", "4000"),
				}},
			}},
			{Number: "1", Name: "General", Children: []*model.CostCodeNode{
				{Number: "1.1", Name: "Admin", Items: []*model.CostCodeNode{node("1.11", "Permits", "1000")}},
			}},
		},
	}

	assert.True(t, Migrate(data))
	assert.True(t, data.Updated)

	tree, err := New(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, numbers(tree.Divisions()))

	exc, _ := tree.NodeByNumber("2.1")
	assert.Equal(t, []string{"2.11", "2.12"}, numbers(exc.Children))
	assert.Empty(t, exc.Items)

	reg := BuildRegistry(tree)
	assert.Equal(t, []string{"1.11", "2.11", "2.12"}, reg.Codes())
}

func TestMigrate_Idempotent(t *testing.T) {
	data := &model.CostCodesData{
		Divisions: []*model.CostCodeNode{
			{Number: "1", Name: "General", Items: []*model.CostCodeNode{node("1.1", "Permits", "1000")}},
		},
	}
	require.True(t, Migrate(data))
	before := numbers(data.Divisions[0].Children)

	// A second call is skipped even if legacy items reappear.
	data.Divisions[0].Items = []*model.CostCodeNode{node("1.2", "Late", "1")}
	assert.False(t, Migrate(data))
	assert.Equal(t, before, numbers(data.Divisions[0].Children))

	assert.False(t, Migrate(nil))
}
