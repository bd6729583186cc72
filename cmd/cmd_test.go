package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/config"
	"github.com/zjrosen/register/internal/presentation"
	"github.com/zjrosen/register/internal/testutil"
)

// isolate points HOME and the working directory at a temp dir so no user
// config is picked up, and stores the register database there.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Setenv("REGISTER_STORAGE_SQLITE_PATH", filepath.Join(dir, "register.db"))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

// openCore opens the same store the commands use, for arranging state the
// command line cannot create.
func openCore(t *testing.T, dir string) *app.App {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.SQLite.Path = filepath.Join(dir, "register.db")
	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	return a
}

func TestRegisters_Lifecycle(t *testing.T) {
	isolate(t)

	out, err := run(t, "registers", "create", "Land Titles", "--tenant", "acme")
	require.NoError(t, err)
	created := decode[presentation.RegisterDTO](t, out)
	require.Equal(t, "Land Titles", created.Name)
	require.Equal(t, "acme", created.TenantID)
	require.True(t, created.IsFullReplica)

	_, err = run(t, "registers", "create", "Other", "--tenant", "globex", "--advertise")
	require.NoError(t, err)

	out, err = run(t, "registers", "list")
	require.NoError(t, err)
	require.Len(t, decode[[]presentation.RegisterDTO](t, out), 2)

	out, err = run(t, "registers", "list", "--tenant", "acme")
	require.NoError(t, err)
	listed := decode[[]presentation.RegisterDTO](t, out)
	require.Len(t, listed, 1)
	require.Equal(t, created.ID, listed[0].ID)

	out, err = run(t, "registers", "status", created.ID, "online")
	require.NoError(t, err)
	require.Equal(t, "online", decode[presentation.RegisterDTO](t, out).Status)

	_, err = run(t, "registers", "status", created.ID, "paused")
	require.Error(t, err)

	_, err = run(t, "registers", "delete", created.ID, "--tenant", "globex")
	require.Error(t, err, "another tenant's register must not be deleted")

	out, err = run(t, "registers", "delete", created.ID, "--tenant", "acme")
	require.NoError(t, err)
	require.Equal(t, "deleted "+created.ID+"\n", out)

	out, err = run(t, "registers", "list", "--tenant", "acme")
	require.NoError(t, err)
	require.Equal(t, "[]\n", out)
}

func TestRegistersCreate_RequiresTenant(t *testing.T) {
	isolate(t)
	_, err := run(t, "registers", "create", "Ledger")
	require.ErrorContains(t, err, "tenant")
}

func TestVerify(t *testing.T) {
	dir := isolate(t)
	ctx := context.Background()

	a := openCore(t, dir)
	sealed, err := a.Registers.CreateRegister(ctx, "Sealed", "acme")
	require.NoError(t, err)
	empty, err := a.Registers.CreateRegister(ctx, "Empty", "acme")
	require.NoError(t, err)
	for _, seed := range []string{"a", "b"} {
		tx, err := a.Transactions.StoreTransaction(ctx, testutil.NewTx(sealed.ID, seed))
		require.NoError(t, err)
		d, err := a.Dockets.CreateDocket(ctx, sealed.ID, []string{tx.TxID})
		require.NoError(t, err)
		_, err = a.Dockets.ProposeDocket(ctx, d)
		require.NoError(t, err)
		_, err = a.Dockets.SealDocket(ctx, d)
		require.NoError(t, err)
	}
	require.NoError(t, a.Close(ctx))

	t.Run("by id", func(t *testing.T) {
		out, err := run(t, "verify", sealed.ID)
		require.NoError(t, err)
		results := decode[[]presentation.VerificationDTO](t, out)
		require.Len(t, results, 1)
		require.True(t, results[0].Valid)
		require.Equal(t, uint64(2), results[0].Height)
		require.Equal(t, 2, results[0].SealedDockets)
	})

	t.Run("all", func(t *testing.T) {
		out, err := run(t, "verify", "--all", "--parallel", "1")
		require.NoError(t, err)
		results := decode[[]presentation.VerificationDTO](t, out)
		require.Len(t, results, 2)
		ids := []string{results[0].RegisterID, results[1].RegisterID}
		require.ElementsMatch(t, []string{sealed.ID, empty.ID}, ids)
	})

	t.Run("missing register fails", func(t *testing.T) {
		out, err := run(t, "verify", sealed.ID, "missing")
		require.ErrorIs(t, err, ErrChainInvalid)
		results := decode[[]presentation.VerificationDTO](t, out)
		require.True(t, results[0].Valid)
		require.False(t, results[1].Valid)
		require.Contains(t, results[1].Error, "not found")
	})

	t.Run("argument errors", func(t *testing.T) {
		_, err := run(t, "verify")
		require.Error(t, err)
		_, err = run(t, "verify", "--all", sealed.ID)
		require.Error(t, err)
		_, err = run(t, "verify", "--all", "--parallel", "0")
		require.ErrorContains(t, err, "--parallel")
	})
}

func TestStatsAndWalk(t *testing.T) {
	dir := isolate(t)
	ctx := context.Background()

	a := openCore(t, dir)
	reg, err := a.Registers.CreateRegister(ctx, "Chain", "acme")
	require.NoError(t, err)
	fixtures := []struct {
		seed string
		opts []testutil.TxOption
	}{
		{"root", []testutil.TxOption{testutil.At(1), testutil.Recipients("bob")}},
		{"a", []testutil.TxOption{testutil.At(2), testutil.Prev("root")}},
		{"b", []testutil.TxOption{testutil.At(3), testutil.Prev("a")}},
	}
	for _, f := range fixtures {
		_, err := a.Transactions.StoreTransaction(ctx, testutil.NewTx(reg.ID, f.seed, f.opts...))
		require.NoError(t, err)
	}
	require.NoError(t, a.Close(ctx))

	out, err := run(t, "stats", reg.ID)
	require.NoError(t, err)
	stats := decode[presentation.StatisticsDTO](t, out)
	require.Equal(t, 3, stats.TotalTransactions)
	require.Equal(t, 1, stats.UniqueSenders)
	require.Equal(t, 1, stats.UniqueRecipients)
	require.Equal(t, testutil.BaseTime.Add(1e9), stats.EarliestTransaction.UTC())

	out, err = run(t, "walk", reg.ID, testutil.TxID("root"))
	require.NoError(t, err)
	walk := decode[presentation.WalkDTO](t, out)
	require.Equal(t, []string{testutil.TxID("root"), testutil.TxID("a"), testutil.TxID("b")}, walk.Path)
	require.Equal(t, testutil.TxID("b"), walk.Tip)
	require.Empty(t, walk.Forks)

	out, err = run(t, "walk", reg.ID, testutil.TxID("root"), "--max-steps", "1")
	require.NoError(t, err)
	walk = decode[presentation.WalkDTO](t, out)
	require.True(t, walk.StepLimitReached)
	require.Len(t, walk.Path, 2)

	_, err = run(t, "walk", reg.ID, testutil.TxID("root"), "--max-steps", "0")
	require.ErrorContains(t, err, "maxSteps")
}

func TestMigrate(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	result := decode[migrateResult](t, out)
	require.Equal(t, config.DriverSQLite, result.Driver)
	require.Equal(t, filepath.Join(dir, "register.db"), result.Path)
	require.Equal(t, uint(1), result.Version)
	require.False(t, result.Dirty)

	t.Setenv("REGISTER_STORAGE_DRIVER", config.DriverMemory)
	_, err = run(t, "migrate")
	require.ErrorContains(t, err, "no schema")
}

func TestConfig(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "conf", "config.yaml")

	out, err := run(t, "config", "init", "--config", path)
	require.NoError(t, err)
	require.Equal(t, "wrote "+path+"\n", out)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, "config", "init", "--config", path)
	require.ErrorContains(t, err, "already exists")
	_, err = run(t, "config", "init", "--config", path, "--force")
	require.NoError(t, err)

	_, err = run(t, "config", "flag", "seal-lock", "off", "--config", path)
	require.NoError(t, err)

	out, err = run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	var shown config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	require.False(t, shown.Flags["seal-lock"])
	require.True(t, shown.Flags["register-cache"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "# cache positive register existence lookups", "comments should survive")

	_, err = run(t, "config", "flag", "no-such-flag", "on", "--config", path)
	require.ErrorContains(t, err, "unknown flag")
	_, err = run(t, "config", "flag", "seal-lock", "maybe", "--config", path)
	require.ErrorContains(t, err, "on or off")
}

func TestConfigShow_MasksPassword(t *testing.T) {
	isolate(t)
	t.Setenv("REGISTER_STORAGE_MYSQL_PASSWORD", "hunter2")

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	require.NotContains(t, out, "hunter2")
	require.Contains(t, out, "********")
}

func TestInvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("REGISTER_STORAGE_DRIVER", "postgres")

	_, err := run(t, "registers", "list")
	require.ErrorContains(t, err, "invalid config")
}

func TestMissingExplicitConfig(t *testing.T) {
	dir := isolate(t)
	_, err := run(t, "registers", "list", "--config", filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
}

func TestLogToStderr(t *testing.T) {
	isolate(t)
	t.Setenv("REGISTER_LOG_ENABLED", "true")
	t.Setenv("REGISTER_LOG_PATH", config.LogToStderr)

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"registers", "create", "Logged", "--tenant", "acme"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.Contains(t, errOut.String(), "[INFO] [register] register created")
	require.NotContains(t, out.String(), "register created")
	_, err := os.Stat(config.LogToStderr)
	require.True(t, os.IsNotExist(err), "no file named - should be created")
}
