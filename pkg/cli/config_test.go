package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUserConfig_Missing(t *testing.T) {
	t.Setenv(configDirEnv, t.TempDir())

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.Empty(t, cfg.Profiles)
}

func TestSaveUserConfig_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	t.Setenv(configDirEnv, dir)

	in := &UserConfig{CurrentProfile: "work", Profiles: map[string]Profile{
		"work": {SchemaDir: "/srv/schemas", Model: "gpt-4o", APIKey: "k"},
	}}
	require.NoError(t, SaveUserConfig(in))

	info, err := os.Stat(ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadUserConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnv, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("profiles: [unclosed"), 0o600))

	_, err := LoadUserConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestActiveProfile(t *testing.T) {
	cfg := &UserConfig{CurrentProfile: "a", Profiles: map[string]Profile{
		"a": {Model: "m-a"},
		"b": {Model: "m-b"},
	}}

	p, err := cfg.ActiveProfile("")
	require.NoError(t, err)
	assert.Equal(t, "m-a", p.Model)

	p, err = cfg.ActiveProfile("b")
	require.NoError(t, err)
	assert.Equal(t, "m-b", p.Model)

	_, err = cfg.ActiveProfile("c")
	require.Error(t, err)
}
