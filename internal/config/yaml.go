package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	toml "github.com/pelletier/go-toml/v2"
	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes converts YAML and TOML config to JSON bytes so we can
// re-use the strict JSON decoder for every format.
//
// Returns (jsonBytes, format, err) where format is "json", "yaml" or "toml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	var (
		v      any
		format string
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, format, fmt.Errorf("yaml unmarshal: %w", err)
		}
	case ".toml":
		format = "toml"
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, format, fmt.Errorf("toml unmarshal: %w", err)
		}
		v = m
	default:
		return data, "json", nil
	}

	if v == nil {
		// Empty document: keep defaults.
		return []byte("{}"), format, nil
	}
	j, err := sonic.ConfigStd.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, format, fmt.Errorf("%s->json marshal: %w", format, err)
	}
	return j, format, nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
