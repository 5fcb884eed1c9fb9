// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tag

import (
	_ "embed"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomyYAML []byte

// Category is a named label with the keywords that indicate it.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Taxonomy holds the ordered domain and tag tables. Position in each list
// breaks score ties.
type Taxonomy struct {
	Domains []Category `yaml:"domains"`
	Tags    []Category `yaml:"tags"`
}

// DefaultTaxonomy returns the built-in keyword tables.
func DefaultTaxonomy() Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomyYAML)
	if err != nil {
		panic(fmt.Sprintf("tag: built-in taxonomy: %v", err))
	}
	return t
}

// ParseTaxonomy decodes a YAML taxonomy and checks that it is usable.
func ParseTaxonomy(data []byte) (Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Taxonomy{}, fmt.Errorf("parsing taxonomy: %w", err)
	}
	if err := t.validate(); err != nil {
		return Taxonomy{}, err
	}
	return t, nil
}

// LoadTaxonomy reads a YAML taxonomy from path.
func LoadTaxonomy(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("reading taxonomy %s: %w", path, err)
	}
	return ParseTaxonomy(data)
}

func (t Taxonomy) validate() error {
	for _, table := range []struct {
		kind string
		cats []Category
	}{{"domain", t.Domains}, {"tag", t.Tags}} {
		seen := make(map[string]bool, len(table.cats))
		for i, c := range table.cats {
			if c.Name == "" {
				return fmt.Errorf("taxonomy %s #%d has no name", table.kind, i+1)
			}
			if seen[c.Name] {
				return fmt.Errorf("taxonomy %s %q listed twice", table.kind, c.Name)
			}
			seen[c.Name] = true
		}
	}
	return nil
}
