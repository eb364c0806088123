package costcode

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/b2a/internal/model"
)

// OpKind names a structural budget edit.
type OpKind string

const (
	OpAddDivision OpKind = "add_division"
	OpAdd         OpKind = "add"
	OpEdit        OpKind = "edit"
	OpRemove      OpKind = "remove"
)

// Operation is an account-level budget edit that is re-applied to every
// project's copy of the tree. It addresses nodes by cost-code number, which
// is stable across copies, rather than by positional path.
type Operation struct {
	Kind   OpKind `json:"kind"`
	Target string `json:"target,omitempty"` // parent number for add; node number for edit/remove
	Number string `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
	// Value is the budgeted amount. An edit leaves the value alone when
	// Value is not set.
	Value decimal.NullDecimal `json:"value"`
}

func (op Operation) String() string {
	switch op.Kind {
	case OpAddDivision:
		return fmt.Sprintf("add division %s %s", op.Number, op.Name)
	case OpAdd:
		return fmt.Sprintf("add %s %s under %s", op.Number, op.Name, op.Target)
	case OpEdit:
		return fmt.Sprintf("edit %s -> %s %s", op.Target, op.Number, op.Name)
	case OpRemove:
		return fmt.Sprintf("remove %s", op.Target)
	}
	return string(op.Kind)
}

// Apply performs one operation on the tree.
func (t *Tree) Apply(op Operation) error {
	switch op.Kind {
	case OpAddDivision:
		_, err := t.AddDivision(&model.CostCodeNode{Number: op.Number, Name: op.Name, Value: op.Value.Decimal})
		return err
	case OpAdd:
		parent, ok := t.byNumber[op.Target]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, op.Target)
		}
		parentPath, _ := t.PathOf(parent.ID)
		_, err := t.addUnder(parent, parentPath, &model.CostCodeNode{Number: op.Number, Name: op.Name, Value: op.Value.Decimal})
		return err
	case OpEdit:
		path, err := t.pathOfNumber(op.Target)
		if err != nil {
			return err
		}
		name := op.Name
		if name == "" {
			name = t.byNumber[op.Target].Name
		}
		if _, err := t.EditCostCode(path, name, op.Number); err != nil {
			return err
		}
		if op.Value.Valid {
			n := t.byNumber[numberOr(op.Number, op.Target)]
			n.Value = op.Value.Decimal
		}
		return nil
	case OpRemove:
		path, err := t.pathOfNumber(op.Target)
		if err != nil {
			return err
		}
		_, err = t.RemoveCostCode(path)
		return err
	}
	return fmt.Errorf("unknown operation kind %q", op.Kind)
}

func numberOr(number, fallback string) string {
	if number != "" {
		return number
	}
	return fallback
}

func (t *Tree) pathOfNumber(number string) (Path, error) {
	n, ok := t.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, number)
	}
	path, _ := t.PathOf(n.ID)
	return path, nil
}

// ApplyOperations applies ops in order. Either all succeed or the tree is
// left unchanged.
func (t *Tree) ApplyOperations(ops []Operation) error {
	c := t.Clone()
	for i, op := range ops {
		if err := c.Apply(op); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i+1, op, err)
		}
	}
	*t = *c
	return nil
}

// ApplyAll cascades ops to every tree. No tree is modified unless the ops
// succeed on all of them.
func ApplyAll(trees []*Tree, ops []Operation) error {
	clones := make([]*Tree, len(trees))
	for i, t := range trees {
		c := t.Clone()
		if err := c.ApplyOperations(ops); err != nil {
			return fmt.Errorf("budget %d: %w", i+1, err)
		}
		clones[i] = c
	}
	for i, t := range trees {
		*t = *clones[i]
	}
	return nil
}
