package model

import "github.com/shopspring/decimal"

// CostCodeNode is one level of the budget hierarchy. Depth 0 is a division;
// leaves are cost codes that actuals are attributed to.
type CostCodeNode struct {
	ID       string          `json:"id,omitempty"`
	Number   string          `json:"number"`
	Name     string          `json:"name"`
	Value    decimal.Decimal `json:"value"`
	Children []*CostCodeNode `json:"children,omitempty"`

	// Items holds leaves of the legacy division/subdivision/item shape.
	// Migration folds them into Children.
	Items []*CostCodeNode `json:"items,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (n *CostCodeNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// Label is the display label used by charts and reports: "1.1 Concrete".
func (n *CostCodeNode) Label() string {
	if n.Name == "" {
		return n.Number
	}
	return n.Number + " " + n.Name
}

// CostCodesData is the root of a cost-code tree as persisted.
type CostCodesData struct {
	Format    string          `json:"format"`
	Currency  string          `json:"currency"`
	Updated   bool            `json:"updated"`
	Divisions []*CostCodeNode `json:"divisions"`
}
