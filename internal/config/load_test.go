package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/flags"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	v, err := NewViper()
	require.NoError(t, err)

	cfg, err := Load(v, "")
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `storage:
  driver: mysql
  mysql:
    host: db.internal
    database: ledger
cache:
  register_ttl: 30s
flags:
  seal-lock: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v, err := NewViper()
	require.NoError(t, err)
	cfg, err := Load(v, path)
	require.NoError(t, err)

	require.Equal(t, DriverMySQL, cfg.Storage.Driver)
	require.Equal(t, "db.internal", cfg.Storage.MySQL.Host)
	require.Equal(t, 3306, cfg.Storage.MySQL.Port, "unset keys keep their default")
	require.Equal(t, 30*time.Second, cfg.Cache.RegisterTTL)
	require.False(t, cfg.Flags[flags.FlagSealLock])
	require.True(t, cfg.Flags[flags.FlagRegisterCache])
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("REGISTER_STORAGE_DRIVER", "memory")
	t.Setenv("REGISTER_METRICS_NAMESPACE", "ledger")
	t.Setenv("REGISTER_FLAGS_REGISTER_CACHE", "false")

	v, err := NewViper()
	require.NoError(t, err)
	cfg, err := Load(v, "")
	require.NoError(t, err)

	require.Equal(t, DriverMemory, cfg.Storage.Driver)
	require.Equal(t, "ledger", cfg.Metrics.Namespace)
	require.False(t, cfg.Flags[flags.FlagRegisterCache])
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: postgres\n"), 0o600))

	v, err := NewViper()
	require.NoError(t, err)
	_, err = Load(v, path)
	require.ErrorContains(t, err, "invalid config")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	v, err := NewViper()
	require.NoError(t, err)
	_, err = Load(v, filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestFindConfigFile(t *testing.T) {
	require.Equal(t, "explicit.yaml", FindConfigFile("explicit.yaml"))

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	require.Empty(t, FindConfigFile(""))

	require.NoError(t, os.MkdirAll(".register", 0o750))
	require.NoError(t, os.WriteFile(LocalConfigPath, []byte("{}\n"), 0o600))
	require.Equal(t, LocalConfigPath, FindConfigFile(""))
}
