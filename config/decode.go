package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ghodss/yaml"
	"github.com/hashicorp/hcl"
)

// decoder turns configuration file content into JSON, so all formats share json tags.
type decoder func(data []byte) ([]byte, error)

func selectDecoder(fname string) decoder {
	switch strings.ToLower(filepath.Ext(fname)) {
	case ".yml", ".yaml":
		return yaml.YAMLToJSON
	case ".toml":
		return tomlToJSON
	case ".hcl":
		return hclToJSON
	default:
		return jsonToJSON
	}
}

func jsonToJSON(data []byte) ([]byte, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	return data, nil
}

func tomlToJSON(data []byte) ([]byte, error) {
	var v map[string]any
	if err := toml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func hclToJSON(data []byte) ([]byte, error) {
	var v map[string]any
	if err := hcl.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(flattenHCL(v))
}

// flattenHCL undoes HCL habit of wrapping every block into a list.
func flattenHCL(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = flattenHCL(e)
		}
		return t
	case []map[string]any:
		if len(t) == 1 {
			return flattenHCL(t[0])
		}
		res := make([]any, 0, len(t))
		for _, e := range t {
			res = append(res, flattenHCL(e))
		}
		return res
	case []any:
		for i, e := range t {
			t[i] = flattenHCL(e)
		}
		return t
	default:
		return v
	}
}
