package unit

import "sync"

// container is the manager's bookkeeping record for one loaded unit.
// Grounded on the original ModuleContainer record; Go gives us a
// mutex-guarded mutable struct instead of withState-style copying.
type container struct {
	descriptor Descriptor
	unit       Unit
	ctx        *Context

	mu    sync.RWMutex
	state State
}

func newContainer(desc Descriptor, u Unit, ctx *Context) *container {
	return &container{descriptor: desc, unit: u, ctx: ctx, state: Discovered}
}

func (c *container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *container) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Info is the introspection snapshot of one unit, returned by
// Manager.Snapshot. Grounded on the original ModuleInfo record,
// supplemented with dependency lists for a richer /units endpoint.
type Info struct {
	ID          string
	DisplayName string
	Version     string
	Description string
	State       State

	HardDependencies []string
	SoftDependencies []string
}

func (c *container) info() Info {
	return Info{
		ID:               c.descriptor.ID,
		DisplayName:      c.unit.DisplayName(),
		Version:          c.unit.Version(),
		Description:      c.unit.Description(),
		State:            c.State(),
		HardDependencies: c.descriptor.HardDependencies,
		SoftDependencies: c.descriptor.SoftDependencies,
	}
}
