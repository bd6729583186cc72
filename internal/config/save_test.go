package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/register/internal/flags"
)

func TestMarshal_RoundTripsThroughViper(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Driver = DriverMemory
	cfg.Metrics.Address = "127.0.0.1:9464"

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "driver: memory")
	assert.Contains(t, string(data), "register_ttl: 5m0s")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	v, err := NewViper()
	require.NoError(t, err)
	loaded, err := Load(v, path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.MySQL.Password = "hunter2"

	out := Redacted(cfg)
	require.Equal(t, "********", out.Storage.MySQL.Password)
	require.Equal(t, "hunter2", cfg.Storage.MySQL.Password, "original is untouched")
	require.Empty(t, Redacted(Defaults()).Storage.MySQL.Password)
}

func TestSetFlag_CreatesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, SetFlag(path, flags.FlagSealLock, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got struct {
		Flags map[string]bool `yaml:"flags"`
	}
	require.NoError(t, yaml.Unmarshal(data, &got))
	require.Equal(t, map[string]bool{flags.FlagSealLock: false}, got.Flags)
}

func TestSetFlag_PreservesCommentsAndOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	require.NoError(t, SetFlag(path, flags.FlagRegisterCache, false))
	require.NoError(t, SetFlag(path, "experimental", true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# Register core configuration")
	assert.Contains(t, content, "register-cache: false")
	assert.Contains(t, content, "seal-lock: true")
	assert.Contains(t, content, "experimental: true")
	assert.Contains(t, content, "buffer_size: 256")

	v, err := NewViper()
	require.NoError(t, err)
	cfg, err := Load(v, path)
	require.NoError(t, err)
	require.False(t, cfg.Flags[flags.FlagRegisterCache])
	require.True(t, cfg.Flags[flags.FlagSealLock])
}

func TestSetFlag_EmptyFlagsSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flags:\n"), 0o600))

	require.NoError(t, SetFlag(path, "x", true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "x: true")
}

func TestSetFlag_Errors(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, SetFlag(filepath.Join(dir, "c.yaml"), "", true))

	listPath := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(listPath, []byte("- a\n- b\n"), 0o600))
	require.ErrorContains(t, SetFlag(listPath, "x", true), "mapping")

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("flags: [\n"), 0o600))
	require.ErrorContains(t, SetFlag(badPath, "x", true), "parsing config")
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))
}
