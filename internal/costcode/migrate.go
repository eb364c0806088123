package costcode

import "github.com/cleared-dev/b2a/internal/model"

// Migrate converts a legacy division/subdivision/item tree into the N-level
// shape by folding every node's Items into its Children in sorted order.
// It is a no-op once data.Updated is set and reports whether it changed
// anything. Call it once at load time, before New.
func Migrate(data *model.CostCodesData) bool {
	if data == nil || data.Updated {
		return false
	}
	data.Divisions = migrateNodes(data.Divisions)
	data.Updated = true
	return true
}

func migrateNodes(nodes []*model.CostCodeNode) []*model.CostCodeNode {
	var sorted []*model.CostCodeNode
	for _, n := range nodes {
		children := append(n.Children, n.Items...)
		n.Items = nil
		n.Children = migrateNodes(children)
		sorted, _ = InsertSorted(sorted, n)
	}
	return sorted
}
