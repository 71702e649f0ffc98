package unit

import (
	"fmt"

	"github.com/rubidium-run/rubidium/internal/corerr"
)

// resolveOrder topologically sorts descs by hard dependency, falling
// back to a hint-only walk of soft dependencies. Grounded on the
// original ModuleManager.topologicalSort's three-color (visited/
// visiting/unvisited) depth-first walk. Per the runtime core's Open
// Question decision, a unit with a missing or cyclic hard dependency is
// excluded from the result entirely rather than loaded out of order;
// excluded carries one error per excluded id.
func resolveOrder(descs []Descriptor) (ordered []Descriptor, excluded map[string]error) {
	byID := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		byID[d.ID] = d
	}

	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	excluded = make(map[string]error)
	var result []Descriptor

	var visit func(d Descriptor) bool
	visit = func(d Descriptor) bool {
		if visiting[d.ID] {
			excluded[d.ID] = corerr.DependencyError(d.ID, "circular hard dependency detected")
			return false
		}
		if visited[d.ID] {
			return true
		}
		if _, alreadyExcluded := excluded[d.ID]; alreadyExcluded {
			return false
		}

		visiting[d.ID] = true

		for _, depID := range d.HardDependencies {
			dep, ok := byID[depID]
			if !ok {
				excluded[d.ID] = corerr.DependencyError(d.ID, fmt.Sprintf("missing hard dependency %q", depID))
				visiting[d.ID] = false
				return false
			}
			if !visit(dep) {
				excluded[d.ID] = corerr.DependencyError(d.ID, fmt.Sprintf("hard dependency %q failed to resolve", depID))
				visiting[d.ID] = false
				return false
			}
		}

		for _, depID := range d.SoftDependencies {
			if dep, ok := byID[depID]; ok {
				visit(dep)
			}
		}

		visiting[d.ID] = false
		visited[d.ID] = true
		result = append(result, d)
		return true
	}

	for _, d := range descs {
		if !visited[d.ID] {
			if _, isExcluded := excluded[d.ID]; !isExcluded {
				visit(d)
			}
		}
	}

	return result, excluded
}
