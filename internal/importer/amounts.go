package importer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/b2a/internal/money"
)

// amountFields are the bundle keys holding amounts. Source systems write
// them as formatted strings ("1,200.00", "(50.00)").
var amountFields = map[string]bool{
	"total_amount":     true,
	"total_tax_amount": true,
	"amount":           true,
	"qty":              true,
	"rate":             true,
	"hours":            true,
	"subtotal_amt":     true,
	"qty_amt":          true,
	"rate_amt":         true,
	"total_amt":        true,
}

func normalizeAmount(key, s string) (string, error) {
	if s == "" {
		return s, nil
	}
	d, err := money.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return d.String(), nil
}

// normalizeJSON rewrites formatted amount strings in a decoded JSON value.
func normalizeJSON(v any) error {
	switch v := v.(type) {
	case map[string]any:
		for k, child := range v {
			if s, ok := child.(string); ok && amountFields[k] {
				n, err := normalizeAmount(k, s)
				if err != nil {
					return err
				}
				v[k] = n
				continue
			}
			if err := normalizeJSON(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range v {
			if err := normalizeJSON(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizeJSONBundle returns raw with its amount strings rewritten as plain
// decimals.
func normalizeJSONBundle(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := normalizeJSON(v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// normalizeYAML rewrites formatted amount scalars in place.
func normalizeYAML(n *yaml.Node) error {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if val.Kind == yaml.ScalarNode && amountFields[key.Value] && val.Tag != "!!null" {
				s, err := normalizeAmount(key.Value, val.Value)
				if err != nil {
					return fmt.Errorf("line %d: %w", val.Line, err)
				}
				val.Value = s
				val.Tag = "!!str"
				val.Style = yaml.DoubleQuotedStyle
				continue
			}
			if err := normalizeYAML(val); err != nil {
				return err
			}
		}
		return nil
	}
	for _, child := range n.Content {
		if err := normalizeYAML(child); err != nil {
			return err
		}
	}
	return nil
}
