package appconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupvault/internal/appconfig"
)

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := appconfig.Load()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Defaults.LastProjectPath)
	assert.Nil(t, cfg.Defaults.CPUProfile)
	assert.Nil(t, cfg.Theme.Green)
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "dupvault")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	content := `
[defaults]
last_project_path = "/home/user/Pictures.dupvault"
cpu_profile = "fast"
verify_by_default = true

[theme]
green = "#00ff00"
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))

	cfg, err := appconfig.Load()
	require.NoError(t, err)

	assert.Equal(t, "/home/user/Pictures.dupvault", cfg.Defaults.LastProjectPath)
	require.NotNil(t, cfg.Defaults.CPUProfile)
	assert.Equal(t, "fast", string(*cfg.Defaults.CPUProfile))
	require.NotNil(t, cfg.Defaults.VerifyByDefault)
	assert.True(t, *cfg.Defaults.VerifyByDefault)
	require.NotNil(t, cfg.Theme.Green)
	assert.Equal(t, "#00ff00", *cfg.Theme.Green)
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "dupvault")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte("invalid [[["), 0o644))

	_, err := appconfig.Load()
	assert.Error(t, err)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := appconfig.Config{}
	cfg.Defaults.LastProjectPath = "/mnt/backup/vacation.dupvault"

	require.NoError(t, appconfig.Save(cfg))

	loaded, err := appconfig.Load()
	require.NoError(t, err)
	assert.Equal(t, "/mnt/backup/vacation.dupvault", loaded.Defaults.LastProjectPath)
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/dupvault/config.toml", appconfig.Path())
}
