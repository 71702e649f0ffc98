package unit

import (
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Descriptor describes a unit's identity and dependency edges, parsed
// either from an on-disk manifest (dynamically loaded units) or
// supplied directly by Register (built-in units). Grounded on the
// original ModuleDescriptor record, including its constructor
// validation of the id shape.
type Descriptor struct {
	ID      string
	Version string

	// EntryPath is the filesystem path to the unit's compiled plug-in
	// (a Go plugin .so) for dynamically discovered units. Empty for
	// units registered in-process via Register.
	EntryPath string

	HardDependencies []string
	SoftDependencies []string

	// BudgetMillis, if > 0, is auto-registered with the budget manager
	// on load, per the original's manifest-declared budget supplement.
	BudgetMillis int
}

// Validate checks the id shape, mirroring ModuleDescriptor's compact
// constructor validation.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("unit descriptor: id cannot be blank")
	}
	if !idPattern.MatchString(d.ID) {
		return fmt.Errorf("unit descriptor: id %q must be lowercase alphanumeric with underscores", d.ID)
	}
	return nil
}
