package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk pricing format. YAML, JSON and TOML files share it:
//
//	default:
//	  input_cost_per_million: 3.0
//	  output_cost_per_million: 15.0
//	models:
//	  anthropic.claude-3-haiku-20240307-v1:0:
//	    input_cost_per_million: 0.25
//	    output_cost_per_million: 1.25
type File struct {
	Default *Price           `yaml:"default" json:"default" toml:"default"`
	Models  map[string]Price `yaml:"models" json:"models" toml:"models"`
}

// LoadFile reads a pricing file. The format is chosen by extension.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file %q: %w", path, err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	case ".toml":
		_, err = toml.Decode(string(data), &f)
	default:
		return nil, fmt.Errorf("unsupported pricing file format %q (supported: .yaml, .yml, .json, .toml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse pricing file %q: %w", path, err)
	}

	if f.Default != nil {
		if err := f.Default.Validate(); err != nil {
			return nil, fmt.Errorf("pricing file %q: default: %w", path, err)
		}
	}
	for id, p := range f.Models {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("pricing file %q: model %q: %w", path, id, err)
		}
	}

	return &f, nil
}

// Apply merges the file into t: file models are layered over base, then the
// result replaces the table entries. A default in the file replaces the
// table default.
func (f *File) Apply(t *Table, base map[string]Price) error {
	merged := make(map[string]Price, len(base)+len(f.Models))
	for id, p := range base {
		merged[id] = p
	}
	for id, p := range f.Models {
		merged[id] = p
	}

	if err := t.Replace(merged); err != nil {
		return err
	}
	if f.Default != nil {
		return t.SetDefault(*f.Default)
	}
	return nil
}
