package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// file is the on-disk shape: either a single scenario or a list under
// "scenarios".
type file struct {
	Scenario  `yaml:",inline"`
	Scenarios []Scenario `yaml:"scenarios,omitempty"`
}

// Parse decodes one YAML document into scenarios and normalizes their mocks.
// Every returned scenario has passed Validate.
func Parse(data []byte) ([]Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("scenario file is empty")
		}
		return nil, fmt.Errorf("decode scenario yaml: %w", err)
	}

	var out []Scenario
	if len(f.Scenarios) > 0 {
		if f.Name != "" || len(f.Steps) > 0 {
			return nil, fmt.Errorf("scenario file mixes a top-level scenario with a scenarios list")
		}
		out = f.Scenarios
	} else {
		out = []Scenario{f.Scenario}
	}

	seen := make(map[string]bool, len(out))
	for i := range out {
		if err := normalizeMocks(&out[i]); err != nil {
			return nil, err
		}
		if err := out[i].Validate(); err != nil {
			return nil, err
		}
		if seen[out[i].Name] {
			return nil, fmt.Errorf("duplicate scenario name %q", out[i].Name)
		}
		seen[out[i].Name] = true
	}
	return out, nil
}

func normalizeMocks(sc *Scenario) error {
	for i, m := range sc.Mocks {
		n, err := m.Normalize()
		if err != nil {
			return fmt.Errorf("scenario %s mock %d: %w", sc.Name, i+1, err)
		}
		sc.Mocks[i] = n
	}
	return nil
}

// LoadFile reads and parses a scenario file.
func LoadFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	scenarios, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by file name.
// Scenario names must be unique across the directory.
func LoadDir(dir string) ([]Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Scenario
	origin := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		scenarios, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, sc := range scenarios {
			if prev, ok := origin[sc.Name]; ok {
				return nil, fmt.Errorf("scenario %q defined in both %s and %s", sc.Name, prev, path)
			}
			origin[sc.Name] = path
			out = append(out, sc)
		}
	}
	return out, nil
}
