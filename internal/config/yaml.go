package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// isYAML reports whether name selects the YAML decoder.
func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// coerceToJSONBytes lets YAML files go through the strict JSON decoder.
// Anything without a YAML extension is passed through as JSON. The format
// name is returned for error messages.
func coerceToJSONBytes(name string, data []byte) ([]byte, string, error) {
	if !isYAML(name) {
		return data, "json", nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("%s: parse yaml: %w", name, err)
	}
	if doc == nil {
		return []byte("{}"), "yaml", nil
	}
	out, err := json.Marshal(jsonCompatible(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("convert to json: %w", err)
	}
	return out, "yaml", nil
}

// jsonCompatible replaces map[any]any nodes, which encoding/json rejects,
// with string-keyed maps.
func jsonCompatible(node any) any {
	switch n := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = jsonCompatible(v)
		}
		return out
	case map[string]any:
		for k, v := range n {
			n[k] = jsonCompatible(v)
		}
	case []any:
		for i, v := range n {
			n[i] = jsonCompatible(v)
		}
	}
	return node
}
