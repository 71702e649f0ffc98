package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_BringsCoreToRunning(t *testing.T) {
	c, err := New(t.TempDir(), "testcore")
	require.NoError(t, err)

	require.NoError(t, c.Start())
	defer c.Stop()

	assert.Equal(t, Running, c.Phase())
	assert.True(t, c.IsRunning())
}

func TestStart_IsIdempotent(t *testing.T) {
	c, err := New(t.TempDir(), "testcore")
	require.NoError(t, err)

	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.Start())

	assert.Equal(t, Running, c.Phase())
}

func TestStop_ReturnsToStopped(t *testing.T) {
	c, err := New(t.TempDir(), "testcore")
	require.NoError(t, err)

	require.NoError(t, c.Start())
	c.Stop()

	assert.Equal(t, Stopped, c.Phase())
	assert.False(t, c.IsRunning())
}

func TestShutdownHooks_RunInReverseOrder(t *testing.T) {
	c, err := New(t.TempDir(), "testcore")
	require.NoError(t, err)

	var order []string
	c.AddShutdownHook("first", func() { order = append(order, "first") })
	c.AddShutdownHook("second", func() { order = append(order, "second") })

	require.NoError(t, c.Start())
	c.Stop()

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestListeners_NotifiedOnTransition(t *testing.T) {
	c, err := New(t.TempDir(), "testcore")
	require.NoError(t, err)

	var transitions []Phase
	c.AddListener(func(old, new Phase) { transitions = append(transitions, new) })

	require.NoError(t, c.Start())
	c.Stop()

	assert.Contains(t, transitions, Starting)
	assert.Contains(t, transitions, Running)
	assert.Contains(t, transitions, Stopping)
	assert.Contains(t, transitions, Stopped)
}

func TestReload_ReturnsToRunning(t *testing.T) {
	c, err := New(t.TempDir(), "testcore")
	require.NoError(t, err)

	require.NoError(t, c.Start())
	defer c.Stop()

	c.Reload()
	assert.Equal(t, Running, c.Phase())
}

func TestUptime_ZeroWhenStopped(t *testing.T) {
	c, err := New(t.TempDir(), "testcore")
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), c.Uptime())
}
