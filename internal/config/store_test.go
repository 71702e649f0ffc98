package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimits() *LimitsConfig {
	c := DefaultLimitsConfig()
	return &c
}

func TestRegister_CreatesDefaultFileWhenMissing(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Initialize())
	defer s.Shutdown()

	v, err := Register(s, LimitsID, newLimits, newLimits())
	require.NoError(t, err)
	assert.Equal(t, 45, v.TickBudgetMillis)
	assert.True(t, s.IsRegistered(LimitsID))
}

func TestRegister_LoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Initialize())
	defer s.Shutdown()

	seed := newLimits()
	seed.TickBudgetMillis = 30
	require.NoError(t, saveTyped(s.pathFor(LimitsID), seed))

	v, err := Register(s, LimitsID, newLimits, newLimits())
	require.NoError(t, err)
	assert.Equal(t, 30, v.TickBudgetMillis)
}

func TestRegister_RejectsInvalidDefault(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Initialize())
	defer s.Shutdown()

	bad := newLimits()
	bad.TickBudgetMillis = 0

	_, err := Register(s, LimitsID, newLimits, bad)
	assert.Error(t, err)
	assert.False(t, s.IsRegistered(LimitsID))
}

func TestGet_UnregisteredFails(t *testing.T) {
	s := New(t.TempDir())
	_, err := Get[*LimitsConfig](s, "nope")
	assert.Error(t, err)
}

func TestSaveThenReload_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Initialize())
	defer s.Shutdown()

	_, err := Register(s, LimitsID, newLimits, newLimits())
	require.NoError(t, err)

	updated := newLimits()
	updated.TickBudgetMillis = 60
	require.NoError(t, Save(s, LimitsID, updated))

	require.NoError(t, s.Reload(LimitsID))
	v, err := Get[*LimitsConfig](s, LimitsID)
	require.NoError(t, err)
	assert.Equal(t, 60, v.TickBudgetMillis)
}

func TestReload_InvalidFileLeavesHolderUnchanged(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Initialize())
	defer s.Shutdown()

	_, err := Register(s, LimitsID, newLimits, newLimits())
	require.NoError(t, err)

	corrupt := newLimits()
	corrupt.TickBudgetMillis = -1
	require.NoError(t, saveTyped(s.pathFor(LimitsID), corrupt))

	err = s.Reload(LimitsID)
	assert.Error(t, err)

	v, getErr := Get[*LimitsConfig](s, LimitsID)
	require.NoError(t, getErr)
	assert.Equal(t, 45, v.TickBudgetMillis)
}

func TestAddListener_FiresOnReload(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Initialize())
	defer s.Shutdown()

	_, err := Register(s, LimitsID, newLimits, newLimits())
	require.NoError(t, err)

	fired := false
	s.AddListener(LimitsID, func(old, new TypedConfig) {
		fired = true
	})

	updated := newLimits()
	updated.TickBudgetMillis = 50
	require.NoError(t, Save(s, LimitsID, updated))
	require.NoError(t, s.Reload(LimitsID))

	assert.True(t, fired)
}

func TestInitialize_IsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Initialize())
	s.Shutdown()
}
