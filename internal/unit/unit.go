// Package unit implements the runtime core's C5 plug-in manager:
// manifest-driven discovery, hard/soft dependency resolution via a
// three-color depth-first topological sort, the ten-state unit
// lifecycle, and an isolated per-unit loading scope. Grounded on the
// original Module/ModuleContext/ModuleManager/ModuleDescriptor split.
package unit

import (
	"github.com/rubidium-run/rubidium/internal/budget"
	"github.com/rubidium-run/rubidium/internal/config"
	"github.com/rubidium-run/rubidium/internal/corelog"
	"github.com/rubidium-run/rubidium/internal/metrics"
	"github.com/rubidium-run/rubidium/internal/scheduler"
)

// Unit is the contract every plug-in implements. Grounded on the
// original Module interface; OnReload/SupportsReload/
// Hard/SoftDependencies have teacher-matching default implementations
// via Base, which concrete units embed.
type Unit interface {
	ID() string
	DisplayName() string
	Version() string
	Description() string

	HardDependencies() []string
	SoftDependencies() []string

	OnLoad(ctx *Context) error
	OnEnable() error
	OnDisable() error
	OnReload() error
	SupportsReload() bool
}

// Base gives a concrete unit the original's default behavior: no
// dependencies, reload supported but a no-op. Embed this and override
// only what differs.
type Base struct{}

func (Base) HardDependencies() []string { return nil }
func (Base) SoftDependencies() []string { return nil }
func (Base) OnReload() error            { return nil }
func (Base) SupportsReload() bool       { return true }

// Context is handed to a unit's OnLoad, scoping every core service to
// that unit. Grounded on the original ModuleContext; Unit/IsUnitEnabled
// give units the same "ask the manager about a sibling" capability as
// ModuleContext.getModule/isModuleEnabled.
type Context struct {
	UnitID    string
	DataDir   string
	Logger    *corelog.Logger
	Config    *config.Store
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Registry
	Budget    *budget.Manager
	manager   *Manager
}

// IsUnitEnabled reports whether another unit is currently Enabled.
func (c *Context) IsUnitEnabled(id string) bool {
	return c.manager.IsEnabled(id)
}

// Unit returns another unit instance by id, if it is loaded (in any
// state from Loaded onward).
func (c *Context) Unit(id string) (Unit, bool) {
	return c.manager.Unit(id)
}
