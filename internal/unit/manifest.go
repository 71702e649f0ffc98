package unit

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const manifestFileName = "unit.yaml"

// manifestFile is the on-disk shape of a dynamically loaded unit's
// manifest, parsed with yaml.v3. Grounded on the original's JAR
// manifest attributes (Rubidium-Module-Id, -Version, -Module-Class,
// -Dependencies, -Soft-Dependencies) translated to YAML fields, since Go
// plug-ins have no JAR manifest equivalent to piggyback on.
type manifestFile struct {
	ID               string   `yaml:"id"`
	Version          string   `yaml:"version"`
	Entry            string   `yaml:"entry"`
	HardDependencies []string `yaml:"hard_dependencies,omitempty"`
	SoftDependencies []string `yaml:"soft_dependencies,omitempty"`
	BudgetMillis     int      `yaml:"budget_ms,omitempty"`
}

func parseManifest(path string) (Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, err
	}

	var mf manifestFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return Descriptor{}, err
	}

	id := mf.ID
	if id == "" {
		id = idFromEntry(mf.Entry)
	}

	return Descriptor{
		ID:               id,
		Version:          mf.Version,
		EntryPath:        mf.Entry,
		HardDependencies: mf.HardDependencies,
		SoftDependencies: mf.SoftDependencies,
		BudgetMillis:     mf.BudgetMillis,
	}, nil
}

// idFromEntry derives a unit id from its entry-point's simple name
// lowercased, e.g. "./units/ChatFilter/ChatFilter.so" -> "chatfilter",
// for a manifest that omits id entirely.
func idFromEntry(entry string) string {
	base := filepath.Base(entry)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}
