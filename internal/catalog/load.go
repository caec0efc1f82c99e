package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// document is the wrapped form of a catalog file: {"functions": [...]}.
type document struct {
	Functions []FunctionRecord `json:"functions" yaml:"functions"`
}

// LoadFile reads a catalog file. JSON is assumed unless the extension is
// .yaml or .yml. Both a bare list of records and a {"functions": [...]}
// wrapper are accepted.
func LoadFile(path string) ([]FunctionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var records []FunctionRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		records, err = decodeYAML(data)
	default:
		records, err = decodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return records, nil
}

func decodeJSON(data []byte) ([]FunctionRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var records []FunctionRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return doc.Functions, nil
}

func decodeYAML(data []byte) ([]FunctionRecord, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var records []FunctionRecord
		if err := root.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var doc document
	if err := root.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Functions, nil
}

// WriteHarnessFile writes harness records keyed by entry-point path as
// indented JSON.
func WriteHarnessFile(path string, records map[string]FunctionRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal harness records: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write harness records %s: %w", path, err)
	}
	return nil
}
