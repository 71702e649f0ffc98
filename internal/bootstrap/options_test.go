package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	opts, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", opts.DataDir)
	assert.Equal(t, "rubidium", opts.Product)
	assert.Equal(t, "info", opts.LogLevel)
	assert.Equal(t, 4, opts.MaxConcurrentAsync)
}

func TestLoad_EnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("RUBIDIUM_DATA_DIR", "/tmp/custom-data")
	t.Setenv("RUBIDIUM_MAX_ASYNC", "8")

	opts, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom-data", opts.DataDir)
	assert.Equal(t, 8, opts.MaxConcurrentAsync)
}

func TestLoad_MissingEnvFileIsNotAnError(t *testing.T) {
	_, err := Load("/nonexistent/path/to/.env")
	require.NoError(t, err)
}
