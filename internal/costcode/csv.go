package costcode

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/money"
)

const (
	numFields = 4
	colNumber = 0
	colName   = 1
	colValue  = 2
	colParent = 3
)

// ReadCSV reads a flat budget export (number,name,value,parent_number) into
// a tree. Rows may appear in any order; a row with an empty parent is a
// division.
func ReadCSV(r io.Reader) (*Tree, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading budget CSV: %w", err)
	}

	data := &model.CostCodesData{Format: "csv", Updated: true}
	if len(records) <= 1 {
		return New(data)
	}

	nodes := make(map[string]*model.CostCodeNode)
	parents := make(map[string]string)
	var order []string
	for i, rec := range records[1:] {
		n, err := UnmarshalNode(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if _, dup := nodes[n.Number]; dup {
			return nil, fmt.Errorf("row %d: %w: %s", i+2, ErrDuplicateNumber, n.Number)
		}
		nodes[n.Number] = n
		parents[n.Number] = rec[colParent]
		order = append(order, n.Number)
	}

	for _, number := range order {
		n := nodes[number]
		parentNumber := parents[number]
		if parentNumber == "" {
			data.Divisions, _ = InsertSorted(data.Divisions, n)
			continue
		}
		parent, ok := nodes[parentNumber]
		if !ok {
			return nil, fmt.Errorf("cost code %s: parent %s: %w", number, parentNumber, ErrNotFound)
		}
		parent.Children, _ = InsertSorted(parent.Children, n)
	}
	return New(data)
}

// WriteCSV writes the tree depth-first in the format ReadCSV accepts.
func WriteCSV(w io.Writer, t *Tree) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"number", "name", "value", "parent_number"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	var werr error
	row := 2
	t.Traverse(func(n *model.CostCodeNode, _ Path, _ []Path) {
		if werr != nil {
			return
		}
		parentNumber := ""
		if p := t.Parent(n.ID); p != nil {
			parentNumber = p.Number
		}
		if err := cw.Write(MarshalNode(n, parentNumber)); err != nil {
			werr = fmt.Errorf("writing row %d: %w", row, err)
		}
		row++
	}, true)
	if werr != nil {
		return werr
	}
	cw.Flush()
	return cw.Error()
}

// MarshalNode converts a node to a CSV row.
func MarshalNode(n *model.CostCodeNode, parentNumber string) []string {
	row := make([]string, numFields)
	row[colNumber] = n.Number
	row[colName] = n.Name
	row[colValue] = money.Fixed(n.Value)
	row[colParent] = parentNumber
	return row
}

// UnmarshalNode converts a CSV row to a node without children.
func UnmarshalNode(record []string) (*model.CostCodeNode, error) {
	if len(record) != numFields {
		return nil, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}
	if record[colNumber] == "" {
		return nil, errors.New("missing cost code number")
	}
	value, err := money.Parse(record[colValue])
	if err != nil {
		return nil, fmt.Errorf("parsing value for %s: %w", record[colNumber], err)
	}
	return &model.CostCodeNode{
		Number: record[colNumber],
		Name:   record[colName],
		Value:  value,
	}, nil
}
