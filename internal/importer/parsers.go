package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// JSONParser reads bundles written as JSON.
type JSONParser struct{}

// Format returns the parser name.
func (p *JSONParser) Format() string { return "json" }

// Extensions returns the file extensions the parser handles.
func (p *JSONParser) Extensions() []string { return []string{".json"} }

// Parse decodes a JSON bundle. Unknown fields are rejected; amounts may be
// formatted strings such as "1,200.00".
func (p *JSONParser) Parse(r io.Reader) (*Bundle, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading JSON bundle: %w", err)
	}
	var b Bundle
	if len(bytes.TrimSpace(raw)) == 0 {
		return &b, nil
	}
	raw, err = normalizeJSONBundle(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding JSON bundle: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decoding JSON bundle: %w", err)
	}
	return &b, nil
}

// YAMLParser reads bundles written as YAML.
type YAMLParser struct{}

// Format returns the parser name.
func (p *YAMLParser) Format() string { return "yaml" }

// Extensions returns the file extensions the parser handles.
func (p *YAMLParser) Extensions() []string { return []string{".yaml", ".yml"} }

// Parse decodes a YAML bundle. Unknown fields are rejected; amounts may be
// formatted strings such as "1,200.00".
func (p *YAMLParser) Parse(r io.Reader) (*Bundle, error) {
	var b Bundle
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &b, nil
		}
		return nil, fmt.Errorf("decoding YAML bundle: %w", err)
	}
	if err := normalizeYAML(&doc); err != nil {
		return nil, fmt.Errorf("decoding YAML bundle: %w", err)
	}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encoding YAML bundle: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decoding YAML bundle: %w", err)
	}
	return &b, nil
}
