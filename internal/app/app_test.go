package app

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/config"
	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/testutil"
)

func memoryConfig() config.Config {
	cfg := config.Defaults()
	cfg.Storage.Driver = config.DriverMemory
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })
	return a
}

func TestNew_SealsThroughEveryManager(t *testing.T) {
	a := newTestApp(t, memoryConfig())
	ctx := context.Background()

	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := a.Bus.Subscribe(sub)

	reg, err := a.Registers.CreateRegister(ctx, "Ledger", "t1")
	require.NoError(t, err)
	tx, err := a.Transactions.StoreTransaction(ctx, testutil.NewTx(reg.ID, "a"))
	require.NoError(t, err)

	d, err := a.Dockets.CreateDocket(ctx, reg.ID, []string{tx.TxID})
	require.NoError(t, err)
	_, err = a.Dockets.ProposeDocket(ctx, d)
	require.NoError(t, err)
	_, err = a.Dockets.SealDocket(ctx, d)
	require.NoError(t, err)

	var kinds []domain.EventKind
	for len(kinds) < 4 {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Payload.Kind())
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %v", kinds)
		}
	}
	require.Equal(t, []domain.EventKind{
		domain.KindRegisterCreated,
		domain.KindTransactionConfirmed,
		domain.KindDocketConfirmed,
		domain.KindRegisterHeightUpdated,
	}, kinds)

	page, err := a.Queries.GetTransactionsBySender(ctx, reg.ID, tx.SenderWallet, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	require.Equal(t, uint64(1), *page.Items[0].BlockNumber)
}

func TestNew_SQLitePersistsAcrossRestarts(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "register.db")
	ctx := context.Background()

	first, err := New(ctx, cfg)
	require.NoError(t, err)
	reg, err := first.Registers.CreateRegister(ctx, "Durable", "t1")
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := newTestApp(t, cfg)
	got, found, err := second.Registers.GetRegister(ctx, reg.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Durable", got.Name)
}

func TestNew_ServesMetrics(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metrics.Address = "127.0.0.1:0"
	cfg.Metrics.Namespace = "apptest"
	a := newTestApp(t, cfg)

	_, err := a.Registers.CreateRegister(context.Background(), "Ledger", "t1")
	require.NoError(t, err)

	resp, err := http.Get("http://" + a.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "apptest_registers_created_total 1")
	require.Contains(t, string(body), "go_goroutines")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = "postgres"
	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "invalid config")
}

func TestNew_ReleasesOnFailure(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metrics.Address = "256.0.0.1:bad"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestClose_PartialApp(t *testing.T) {
	require.NoError(t, (&App{}).Close(context.Background()))
}

func TestVerifyChains(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metrics.Namespace = "audit"
	a := newTestApp(t, cfg)
	ctx := context.Background()

	var ids []string
	for i := range 3 {
		reg, err := a.Registers.CreateRegister(ctx, "Ledger", "t1")
		require.NoError(t, err)
		tx, err := a.Transactions.StoreTransaction(ctx, testutil.NewTx(reg.ID, "seed", testutil.At(i)))
		require.NoError(t, err)
		d, err := a.Dockets.CreateDocket(ctx, reg.ID, []string{tx.TxID})
		require.NoError(t, err)
		_, err = a.Dockets.ProposeDocket(ctx, d)
		require.NoError(t, err)
		_, err = a.Dockets.SealDocket(ctx, d)
		require.NoError(t, err)
		ids = append(ids, reg.ID)
	}

	results := a.VerifyChains(ctx, append(ids, "missing"), 2)
	require.Len(t, results, 4)
	for i, id := range ids {
		require.Equal(t, id, results[i].RegisterID)
		require.True(t, results[i].Valid())
		require.Equal(t, uint64(1), results[i].Verification.Height)
	}
	require.Equal(t, "missing", results[3].RegisterID)
	require.ErrorIs(t, results[3].Err, domain.ErrNotFound)
	require.False(t, results[3].Valid())

	all, err := a.VerifyAllChains(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	checks := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "audit_chain_verifications_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			checks[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, map[string]float64{"valid": 6, "error": 1}, checks)
}
