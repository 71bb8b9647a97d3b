package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes turns a .yaml/.yml file into JSON so both formats go
// through the same strict decoder. Any other extension is treated as JSON.
// The returned format is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		// empty document
		return []byte("{}"), "yaml", nil
	}

	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// stringKeys rewrites nested maps so every key is a string.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
