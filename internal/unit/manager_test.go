package unit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubidium-run/rubidium/internal/budget"
	"github.com/rubidium-run/rubidium/internal/config"
	"github.com/rubidium-run/rubidium/internal/corelog"
	"github.com/rubidium-run/rubidium/internal/metrics"
	"github.com/rubidium-run/rubidium/internal/scheduler"
)

type fakeUnit struct {
	Base
	id           string
	hardDeps     []string
	onLoadErr    error
	onEnableErr  error
	onDisableErr error
	loaded       bool
	enabled      bool
	disabled     bool
}

func (f *fakeUnit) ID() string                { return f.id }
func (f *fakeUnit) DisplayName() string       { return f.id }
func (f *fakeUnit) Version() string           { return "1.0.0" }
func (f *fakeUnit) Description() string       { return "test unit" }
func (f *fakeUnit) HardDependencies() []string { return f.hardDeps }
func (f *fakeUnit) OnLoad(ctx *Context) error { f.loaded = true; return f.onLoadErr }
func (f *fakeUnit) OnEnable() error           { f.enabled = true; return f.onEnableErr }
func (f *fakeUnit) OnDisable() error          { f.disabled = true; return f.onDisableErr }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()

	logs, err := corelog.New(dir, "test")
	require.NoError(t, err)
	t.Cleanup(logs.Shutdown)

	cfg := config.New(dir)
	require.NoError(t, cfg.Initialize())
	t.Cleanup(cfg.Shutdown)

	reg := metrics.New("test")
	bm := budget.New(reg)
	sched := scheduler.New(bm, reg, logs.Logger("scheduler"), scheduler.Options{})

	resetRegistryForTest()
	t.Cleanup(resetRegistryForTest)

	return New(dir, logs, cfg, sched, reg, bm)
}

func TestLoadThenEnable_HappyPath(t *testing.T) {
	m := newTestManager(t)
	u := &fakeUnit{id: "physics"}
	Register(Descriptor{ID: "physics"}, func() Unit { return u })

	require.NoError(t, m.Load(Descriptor{ID: "physics"}))
	assert.True(t, u.loaded)

	state, ok := m.StateOf("physics")
	require.True(t, ok)
	assert.Equal(t, Loaded, state)

	require.NoError(t, m.Enable("physics"))
	assert.True(t, m.IsEnabled("physics"))
}

func TestLoad_MissingHardDependencyFails(t *testing.T) {
	m := newTestManager(t)
	u := &fakeUnit{id: "renderer", hardDeps: []string{"physics"}}
	Register(Descriptor{ID: "renderer", HardDependencies: []string{"physics"}}, func() Unit { return u })

	err := m.Load(Descriptor{ID: "renderer", HardDependencies: []string{"physics"}})
	assert.Error(t, err)
	assert.False(t, m.IsLoaded("renderer"))
}

func TestEnable_FailurePutsUnitInFailedState(t *testing.T) {
	m := newTestManager(t)
	u := &fakeUnit{id: "ai", onEnableErr: fmt.Errorf("boom")}
	Register(Descriptor{ID: "ai"}, func() Unit { return u })

	require.NoError(t, m.Load(Descriptor{ID: "ai"}))
	err := m.Enable("ai")
	assert.Error(t, err)

	state, _ := m.StateOf("ai")
	assert.Equal(t, Failed, state)
}

func TestDisable_BestEffortStillReachesDisabled(t *testing.T) {
	m := newTestManager(t)
	u := &fakeUnit{id: "net", onDisableErr: fmt.Errorf("cleanup failed")}
	Register(Descriptor{ID: "net"}, func() Unit { return u })

	require.NoError(t, m.Load(Descriptor{ID: "net"}))
	require.NoError(t, m.Enable("net"))

	err := m.Disable("net")
	assert.NoError(t, err)

	state, _ := m.StateOf("net")
	assert.Equal(t, Disabled, state)
}

func TestUnload_RemovesContainer(t *testing.T) {
	m := newTestManager(t)
	u := &fakeUnit{id: "audio"}
	Register(Descriptor{ID: "audio"}, func() Unit { return u })

	require.NoError(t, m.Load(Descriptor{ID: "audio"}))
	require.NoError(t, m.Enable("audio"))
	require.NoError(t, m.Unload("audio"))

	assert.False(t, m.IsLoaded("audio"))
	assert.True(t, u.disabled)
}

func TestDiscoverAndLoad_LoadsBuiltinsInDependencyOrder(t *testing.T) {
	m := newTestManager(t)

	var loadOrder []string
	mkUnit := func(id string, deps ...string) *fakeUnit {
		u := &fakeUnit{id: id, hardDeps: deps}
		return u
	}

	physics := mkUnit("physics")
	renderer := mkUnit("renderer", "physics")

	Register(Descriptor{ID: "physics"}, func() Unit {
		loadOrder = append(loadOrder, "physics")
		return physics
	})
	Register(Descriptor{ID: "renderer", HardDependencies: []string{"physics"}}, func() Unit {
		loadOrder = append(loadOrder, "renderer")
		return renderer
	})

	failures := m.DiscoverAndLoad()
	assert.Empty(t, failures)
	assert.Equal(t, []string{"physics", "renderer"}, loadOrder)
	assert.True(t, m.IsEnabled("physics"))
	assert.True(t, m.IsEnabled("renderer"))
}

func TestResolveOrder_ExcludesCycles(t *testing.T) {
	descs := []Descriptor{
		{ID: "a", HardDependencies: []string{"b"}},
		{ID: "b", HardDependencies: []string{"a"}},
	}
	ordered, excluded := resolveOrder(descs)
	assert.Empty(t, ordered)
	assert.Len(t, excluded, 2)
}

func TestResolveOrder_ExcludesMissingHardDependency(t *testing.T) {
	descs := []Descriptor{
		{ID: "renderer", HardDependencies: []string{"physics"}},
	}
	ordered, excluded := resolveOrder(descs)
	assert.Empty(t, ordered)
	assert.Contains(t, excluded, "renderer")
}

func TestResolveOrder_SoftDependencyMissingIsNotExcluded(t *testing.T) {
	descs := []Descriptor{
		{ID: "hud", SoftDependencies: []string{"inventory"}},
	}
	ordered, excluded := resolveOrder(descs)
	assert.Len(t, ordered, 1)
	assert.Empty(t, excluded)
}

func TestSnapshot_ReflectsLoadedUnits(t *testing.T) {
	m := newTestManager(t)
	u := &fakeUnit{id: "economy"}
	Register(Descriptor{ID: "economy"}, func() Unit { return u })
	require.NoError(t, m.Load(Descriptor{ID: "economy"}))

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "economy", snap[0].ID)
	assert.Equal(t, Loaded, snap[0].State)
}
