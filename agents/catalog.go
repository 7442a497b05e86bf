package agents

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// CatalogEntry is one specialist row in agents.yaml.
type CatalogEntry struct {
	Name        string   `yaml:"name"`
	Enabled     *bool    `yaml:"enabled,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Tools       []string `yaml:"tools,omitempty"`
}

// Catalog is the on-disk specialist configuration. A missing file enables
// everything; an entry without "enabled" defaults to true.
type Catalog struct {
	Agents []CatalogEntry `yaml:"agents"`
}

func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Catalog{}, nil
		}
		return Catalog{}, fmt.Errorf("failed to read agent catalog: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse agent catalog: %w", err)
	}
	return catalog, nil
}

// Enabled reports whether a specialist should be registered. Unknown names
// are enabled so new specialists work without a catalog edit.
func (c Catalog) Enabled(name string) bool {
	for _, entry := range c.Agents {
		if entry.Name == name {
			return entry.Enabled == nil || *entry.Enabled
		}
	}
	return true
}

// ToolsFor returns the configured tool bundle for a specialist, if any.
func (c Catalog) ToolsFor(name string) []string {
	for _, entry := range c.Agents {
		if entry.Name == name {
			return entry.Tools
		}
	}
	return nil
}
