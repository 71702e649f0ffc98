package unit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rubidium-run/rubidium/internal/budget"
	"github.com/rubidium-run/rubidium/internal/config"
	"github.com/rubidium-run/rubidium/internal/corelog"
	"github.com/rubidium-run/rubidium/internal/corerr"
	"github.com/rubidium-run/rubidium/internal/metrics"
	"github.com/rubidium-run/rubidium/internal/scheduler"
)

// Manager discovers, loads, enables, disables, and unloads units.
// Grounded on the original ModuleManager; its ReentrantReadWriteLock
// becomes a sync.RWMutex guarding the units map and load order, while
// per-container state transitions use the container's own mutex so a
// long-running OnLoad/OnEnable on one unit does not stall reads of
// another unit's state.
type Manager struct {
	unitsDir string

	logs    *corelog.Manager
	cfg     *config.Store
	sched   *scheduler.Scheduler
	metrics *metrics.Registry
	budget  *budget.Manager

	mu    sync.RWMutex
	units map[string]*container
	order []string
}

// New creates a Manager rooted at unitsDir (typically <data_dir>/units),
// wired to the already-initialized core services every unit's Context
// will see.
func New(unitsDir string, logs *corelog.Manager, cfg *config.Store, sched *scheduler.Scheduler, m *metrics.Registry, b *budget.Manager) *Manager {
	return &Manager{
		unitsDir: unitsDir,
		logs:     logs,
		cfg:      cfg,
		sched:    sched,
		metrics:  m,
		budget:   b,
		units:    make(map[string]*container),
	}
}

// Discover scans unitsDir for one unit.yaml per immediate
// subdirectory and combines them with every built-in unit registered
// via Register, matching the original's "JAR files on disk plus
// whatever the classloader already knows about" discovery surface.
func (m *Manager) Discover() ([]Descriptor, error) {
	if err := os.MkdirAll(m.unitsDir, 0o755); err != nil {
		return nil, corerr.LoadError("*", "failed to create units directory", err)
	}

	entries, err := os.ReadDir(m.unitsDir)
	if err != nil {
		return nil, corerr.LoadError("*", "failed to list units directory", err)
	}

	var descs []Descriptor
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifestPath := filepath.Join(m.unitsDir, e.Name(), manifestFileName)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		desc, err := parseManifest(manifestPath)
		if err != nil {
			m.logger().Warn("failed to parse unit manifest", logFields("path", manifestPath, "error", err.Error()))
			continue
		}
		if err := desc.Validate(); err != nil {
			m.logger().Warn("invalid unit manifest", logFields("path", manifestPath, "error", err.Error()))
			continue
		}
		descs = append(descs, desc)
	}

	for _, id := range RegisteredIDs() {
		desc, _ := registeredDescriptor(id)
		descs = append(descs, desc)
	}

	return descs, nil
}

// DiscoverAndLoad discovers every unit, resolves dependency order, loads
// each resolved unit, then enables every successfully loaded unit, in
// that order. Individual failures are collected and returned together;
// one unit failing does not stop the others from being attempted,
// matching the original discoverAndLoadModules' per-module try/catch.
func (m *Manager) DiscoverAndLoad() map[string]error {
	failures := make(map[string]error)

	descs, err := m.Discover()
	if err != nil {
		failures["*"] = err
		return failures
	}

	ordered, excluded := resolveOrder(descs)
	for id, err := range excluded {
		failures[id] = err
	}

	for _, desc := range ordered {
		if err := m.Load(desc); err != nil {
			failures[desc.ID] = err
		}
	}

	m.mu.RLock()
	order := make([]string, len(m.order))
	copy(order, m.order)
	m.mu.RUnlock()

	for _, id := range order {
		if err := m.Enable(id); err != nil {
			failures[id] = err
		}
	}

	return failures
}

// Load constructs a unit instance from desc (either a registered
// built-in factory or a dynamically loaded .so) and runs its OnLoad
// hook. Hard dependencies must already be loaded; soft dependencies are
// a hint only.
func (m *Manager) Load(desc Descriptor) error {
	m.mu.Lock()
	if _, exists := m.units[desc.ID]; exists {
		m.mu.Unlock()
		return corerr.LoadError(desc.ID, "unit is already loaded", nil)
	}
	for _, depID := range desc.HardDependencies {
		if _, ok := m.units[depID]; !ok {
			m.mu.Unlock()
			return corerr.DependencyError(desc.ID, fmt.Sprintf("missing hard dependency %q", depID))
		}
	}
	m.mu.Unlock()

	u, err := m.instantiate(desc)
	if err != nil {
		return corerr.LoadError(desc.ID, "failed to instantiate unit", err)
	}

	dataDir := filepath.Join(m.unitsDir, desc.ID, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return corerr.LoadError(desc.ID, "failed to create unit data directory", err)
	}

	ctx := &Context{
		UnitID:    desc.ID,
		DataDir:   dataDir,
		Logger:    m.logs.Logger("unit:" + desc.ID),
		Config:    m.cfg,
		Scheduler: m.sched,
		Metrics:   m.metrics,
		Budget:    m.budget,
		manager:   m,
	}

	c := newContainer(desc, u, ctx)
	c.setState(Loading)

	if err := u.OnLoad(ctx); err != nil {
		c.setState(Failed)
		return corerr.LoadError(desc.ID, "OnLoad failed", err)
	}

	if desc.BudgetMillis > 0 && m.budget != nil {
		m.budget.RegisterUnit(desc.ID, msToDuration(desc.BudgetMillis))
	}

	c.setState(Loaded)

	m.mu.Lock()
	m.units[desc.ID] = c
	m.order = append(m.order, desc.ID)
	m.mu.Unlock()

	return nil
}

func (m *Manager) instantiate(desc Descriptor) (Unit, error) {
	if desc.EntryPath != "" {
		return loadDynamic(desc.EntryPath)
	}
	factory, ok := registeredFactory(desc.ID)
	if !ok {
		return nil, fmt.Errorf("no factory registered for %q and no entry path set", desc.ID)
	}
	return factory(), nil
}

// Enable transitions a Loaded or Disabled unit to Enabled by running
// OnEnable. A failure moves the unit to Failed and is returned.
func (m *Manager) Enable(id string) error {
	c, ok := m.get(id)
	if !ok {
		return corerr.EnableError(id, fmt.Errorf("unit not loaded"))
	}
	if !c.State().CanEnable() {
		return corerr.EnableError(id, fmt.Errorf("cannot enable from state %s", c.State()))
	}

	c.setState(Enabling)
	if err := c.unit.OnEnable(); err != nil {
		c.setState(Failed)
		return corerr.EnableError(id, err)
	}
	c.setState(Enabled)
	return nil
}

// Disable transitions an Enabled unit to Disabled. OnDisable is
// best-effort: an error is logged but the unit still ends up Disabled,
// matching the original disableModule's catch-and-still-succeed.
func (m *Manager) Disable(id string) error {
	c, ok := m.get(id)
	if !ok {
		return corerr.DisableError(id, fmt.Errorf("unit not loaded"))
	}
	if !c.State().CanDisable() {
		return corerr.DisableError(id, fmt.Errorf("cannot disable from state %s", c.State()))
	}

	c.setState(Disabling)
	if m.sched != nil {
		m.sched.CancelOwner(id)
	}
	if err := c.unit.OnDisable(); err != nil {
		m.logger().Error("unit failed to disable cleanly", corerr.DisableError(id, err))
	}
	c.setState(Disabled)
	return nil
}

// Unload removes a Loaded, Disabled, or Failed unit entirely. An
// Enabled unit is disabled first (best-effort) before unloading.
func (m *Manager) Unload(id string) error {
	c, ok := m.get(id)
	if !ok {
		return corerr.LoadError(id, "unit not loaded", nil)
	}

	if c.State() == Enabled {
		_ = m.Disable(id)
	}
	if !c.State().CanUnload() {
		return corerr.LoadError(id, fmt.Sprintf("cannot unload from state %s", c.State()), nil)
	}

	c.setState(Unloading)
	if m.sched != nil {
		m.sched.CancelOwner(id)
	}
	if m.budget != nil {
		m.budget.UnregisterUnit(id)
	}

	m.mu.Lock()
	delete(m.units, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	return nil
}

// Reload re-runs a loaded unit's OnReload hook, for units that declare
// SupportsReload. It does not change lifecycle state.
func (m *Manager) Reload(id string) error {
	c, ok := m.get(id)
	if !ok {
		return corerr.LoadError(id, "unit not loaded", nil)
	}
	if !c.unit.SupportsReload() {
		return corerr.LoadError(id, "unit does not support reload", nil)
	}
	return c.unit.OnReload()
}

// ReloadAll reloads every currently Enabled unit, collecting per-unit
// failures.
func (m *Manager) ReloadAll() map[string]error {
	failures := make(map[string]error)
	for _, id := range m.EnabledIDs() {
		if err := m.Reload(id); err != nil {
			failures[id] = err
		}
	}
	return failures
}

// UnloadAll unloads every loaded unit in reverse load order, matching
// the original unloadAllModules' dependency-respecting teardown.
func (m *Manager) UnloadAll() map[string]error {
	failures := make(map[string]error)

	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.RUnlock()

	for i := len(ids) - 1; i >= 0; i-- {
		if err := m.Unload(ids[i]); err != nil {
			failures[ids[i]] = err
		}
	}
	return failures
}

func (m *Manager) get(id string) (*container, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.units[id]
	return c, ok
}

// IsLoaded reports whether id has a container, in any state.
func (m *Manager) IsLoaded(id string) bool {
	_, ok := m.get(id)
	return ok
}

// IsEnabled reports whether id is currently in the Enabled state.
func (m *Manager) IsEnabled(id string) bool {
	c, ok := m.get(id)
	return ok && c.State() == Enabled
}

// Unit returns the live unit instance for id, if loaded.
func (m *Manager) Unit(id string) (Unit, bool) {
	c, ok := m.get(id)
	if !ok {
		return nil, false
	}
	return c.unit, true
}

// StateOf returns id's current lifecycle state.
func (m *Manager) StateOf(id string) (State, bool) {
	c, ok := m.get(id)
	if !ok {
		return 0, false
	}
	return c.State(), true
}

// LoadedIDs returns every unit id with a container, sorted.
func (m *Manager) LoadedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.units))
	for id := range m.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnabledIDs returns every unit id currently Enabled, sorted.
func (m *Manager) EnabledIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, c := range m.units {
		if c.State() == Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns an Info for every loaded unit, sorted by id.
// Supplemented introspection surface grounded on the original
// ModuleManager.getModuleInfos.
func (m *Manager) Snapshot() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.units))
	for _, c := range m.units {
		infos = append(infos, c.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (m *Manager) logger() *corelog.Logger {
	return m.logs.Logger("unit-manager")
}
