package mesh

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dataset files are JSON or YAML renderings of the blueprint tree; the
// extension picks the codec.

// Load reads a dataset from path (.json, .yaml or .yml) and verifies it.
func Load(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	var ds Dataset
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(raw, &ds); err != nil {
			return nil, fmt.Errorf("decoding dataset %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &ds); err != nil {
			return nil, fmt.Errorf("decoding dataset %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported dataset extension %q", ext)
	}
	if err := Verify(&ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// EncodeDomain renders one domain with the named protocol ("json" or
// "yaml").
func EncodeDomain(dom *Domain, protocol string) ([]byte, error) {
	switch protocol {
	case "json":
		return json.MarshalIndent(dom, "", "  ")
	case "yaml":
		return yaml.Marshal(dom)
	}
	return nil, fmt.Errorf("unsupported protocol %q", protocol)
}

// DecodeDomain parses one domain previously written by EncodeDomain.
func DecodeDomain(raw []byte, protocol string) (*Domain, error) {
	var dom Domain
	switch protocol {
	case "json":
		if err := json.Unmarshal(raw, &dom); err != nil {
			return nil, err
		}
	case "yaml":
		if err := yaml.Unmarshal(raw, &dom); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported protocol %q", protocol)
	}
	return &dom, nil
}
