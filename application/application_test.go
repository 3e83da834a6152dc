package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-serial/pkg/serial"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

func TestRunWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial:
  strategy: indirect
  verify: false
logging:
  serial:
    level: debug
`), 0o600))

	app := New(path)
	require.NoError(t, app.Run())
	assert.Equal(t, serial.StrategyIndirect, app.SerialConfig().Strategy)
	assert.False(t, app.SerialConfig().Verify)
	require.NotNil(t, app.Repository())
	assert.NotNil(t, app.Logger("serial"))
	assert.NotNil(t, app.Logger("unknown"))

	data, err := app.Repository().Marshal([]string{"a"})
	require.NoError(t, err)
	var out []string
	require.NoError(t, app.Repository().Unmarshal(data, &out))
	assert.Equal(t, []string{"a"}, out)
}

func TestRunFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  strategy: direct\n"), 0o600))
	t.Setenv("GARDEN_CONFIG_FILE_PATH", path)

	app := New("")
	require.NoError(t, app.Run())
	assert.Equal(t, serial.StrategyDirect, app.SerialConfig().Strategy)
}

func TestRunMissingExplicitConfig(t *testing.T) {
	app := New(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, app.Run(), merr.ErrIoFailed)
}

func TestGetenvBool(t *testing.T) {
	t.Setenv("GARDEN_TEST_BOOL", "on")
	assert.True(t, getenvBool("GARDEN_TEST_BOOL", false))
	t.Setenv("GARDEN_TEST_BOOL", "maybe")
	assert.True(t, getenvBool("GARDEN_TEST_BOOL", true))
	assert.Equal(t, "x", getenvDefault("GARDEN_TEST_UNSET", "x"))
}
