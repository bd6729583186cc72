// Package repotest holds the behavioural contract every domain.Repository
// implementation must satisfy. Backends call Run from their own tests.
package repotest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/testutil"
)

// Factory returns a fresh, empty repository. Cleanup is registered on t.
type Factory func(t *testing.T) domain.Repository

// Run executes the full contract against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("RegisterLifecycle", func(t *testing.T) { testRegisterLifecycle(t, newRepo(t)) })
	t.Run("RegisterListing", func(t *testing.T) { testRegisterListing(t, newRepo(t)) })
	t.Run("TransactionRoundTrip", func(t *testing.T) { testTransactionRoundTrip(t, newRepo(t)) })
	t.Run("TransactionQueries", func(t *testing.T) { testTransactionQueries(t, newRepo(t)) })
	t.Run("TransactionPaging", func(t *testing.T) { testTransactionPaging(t, newRepo(t)) })
	t.Run("DocketSaveAndRead", func(t *testing.T) { testDocketSaveAndRead(t, newRepo(t)) })
	t.Run("SealDocket", func(t *testing.T) { testSealDocket(t, newRepo(t)) })
	t.Run("SealDocketConflicts", func(t *testing.T) { testSealDocketConflicts(t, newRepo(t)) })
}

var cmpOpts = []cmp.Option{cmpopts.EquateEmpty()}

func requireNotFound(t *testing.T, err error, entity string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrNotFound), "expected not found, got %v", err)
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf), "expected *NotFoundError, got %T", err)
	require.Equal(t, entity, nf.Entity)
}

func testRegisterLifecycle(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	reg := domain.NewRegister("r1", "Ledger", "t1", true, false, testutil.BaseTime)

	require.NoError(t, repo.InsertRegister(ctx, reg))
	require.ErrorIs(t, repo.InsertRegister(ctx, reg), domain.ErrConflict)

	got, err := repo.GetRegister(ctx, "r1")
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(reg, got, cmpOpts...))

	got.Status = domain.RegisterStatusOnline
	got.Name = "Renamed"
	got.UpdatedAt = testutil.BaseTime.Add(time.Hour)
	require.NoError(t, repo.UpdateRegister(ctx, got))

	again, err := repo.GetRegister(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, domain.RegisterStatusOnline, again.Status)
	require.Equal(t, "Renamed", again.Name)
	require.True(t, again.UpdatedAt.Equal(testutil.BaseTime.Add(time.Hour)))

	missing := domain.NewRegister("nope", "x", "t1", false, true, testutil.BaseTime)
	requireNotFound(t, repo.UpdateRegister(ctx, missing), "register")

	n, err := repo.CountRegisters(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, repo.DeleteRegister(ctx, "r1"))
	requireNotFound(t, repo.DeleteRegister(ctx, "r1"), "register")
	_, err = repo.GetRegister(ctx, "r1")
	requireNotFound(t, err, "register")

	n, err = repo.CountRegisters(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func testRegisterListing(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	for i, seed := range []struct{ id, tenant string }{{"c", "t1"}, {"a", "t2"}, {"b", "t1"}} {
		r := domain.NewRegister(seed.id, "reg-"+seed.id, seed.tenant, false, true, testutil.BaseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.InsertRegister(ctx, r))
	}

	all, err := repo.ListRegisters(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, registerIDs(all), "ordered by creation time")

	t1, err := repo.ListRegistersByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, registerIDs(t1))

	none, err := repo.ListRegistersByTenant(ctx, "t9")
	require.NoError(t, err)
	require.Empty(t, none)
}

func registerIDs(rs []*domain.Register) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func testTransactionRoundTrip(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	testutil.NewBuilder(t, repo).WithRegister("r1", "t1").Build()

	action, next := int32(2), int32(3)
	tx := testutil.NewTx("r1", "full",
		testutil.Recipients("bob", "carol"),
		testutil.Prev("parent"),
		testutil.Payloads(2),
		testutil.At(7),
	)
	tx.ID = domain.DeriveTransactionID("r1", tx.TxID)
	tx.Version = 4
	tx.MetaData = &domain.MetaData{
		RegisterID:      "r1",
		TransactionType: "action",
		BlueprintID:     "bp",
		InstanceID:      "inst",
		ActionID:        &action,
		NextActionID:    &next,
		TrackingData:    map[string]string{"step": "approve"},
	}

	require.NoError(t, repo.InsertTransaction(ctx, tx))
	require.ErrorIs(t, repo.InsertTransaction(ctx, tx), domain.ErrConflict)

	got, err := repo.GetTransaction(ctx, "r1", tx.TxID)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(tx, got, cmpOpts...))

	bare := testutil.NewTx("r1", "bare")
	bare.ID = domain.DeriveTransactionID("r1", bare.TxID)
	require.NoError(t, repo.InsertTransaction(ctx, bare))
	got, err = repo.GetTransaction(ctx, "r1", bare.TxID)
	require.NoError(t, err)
	require.Nil(t, got.MetaData, "absent metadata stays absent")
	require.Nil(t, got.BlockNumber)

	_, err = repo.GetTransaction(ctx, "r1", testutil.TxID("missing"))
	requireNotFound(t, err, "transaction")

	// Same tx id in another register is a different transaction.
	testutil.NewBuilder(t, repo).WithRegister("r2", "t1").WithTx("r2", "full").Build()
}

func txSeeds(t *testing.T, txs []*domain.Transaction, seeds ...string) {
	t.Helper()
	want := make([]string, len(seeds))
	for i, s := range seeds {
		want[i] = testutil.TxID(s)
	}
	got := make([]string, len(txs))
	for i, tx := range txs {
		got[i] = tx.TxID
	}
	require.Equal(t, want, got)
}

func testTransactionQueries(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	testutil.NewBuilder(t, repo).
		WithRegister("r1", "t1").
		WithRegister("r2", "t1").
		WithWalletTestData("r1").
		WithChainTestData("r2").
		WithTx("r1", "bp1", testutil.At(10), testutil.Blueprint("bp", "i1")).
		WithTx("r1", "bp2", testutil.At(11), testutil.Blueprint("bp", "i2")).
		Build()

	query := func(f domain.TransactionFilter) []*domain.Transaction {
		t.Helper()
		txs, total, err := repo.QueryTransactions(ctx, f, nil)
		require.NoError(t, err)
		require.Len(t, txs, total)
		return txs
	}

	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r1", Sender: "W"}), "w5", "w3", "w1")
	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r1", Recipient: "W"}), "w4", "w3", "w2")
	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r1",
		Wallet: &domain.WalletFilter{Wallet: "W", AsSender: true, AsRecipient: true}}),
		"w5", "w4", "w3", "w2", "w1")
	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r1",
		Wallet: &domain.WalletFilter{Wallet: "W", AsRecipient: true}}), "w4", "w3", "w2")
	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r1", BlueprintID: "bp"}), "bp2", "bp1")
	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r1", BlueprintID: "bp", InstanceID: "i1"}), "bp1")
	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r1", InstanceID: "i2"}), "bp2")

	prevA := testutil.TxID("a")
	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r2", PrevTxID: &prevA}), "b2", "b1")
	root := ""
	txSeeds(t, query(domain.TransactionFilter{RegisterID: "r2", PrevTxID: &root}), "root")
	require.Empty(t, query(domain.TransactionFilter{RegisterID: "r1", PrevTxID: &prevA}), "register scoped")

	all := query(domain.TransactionFilter{RegisterID: "r2"})
	txSeeds(t, all, "b2", "orphan", "b1", "a", "root")
}

func testTransactionPaging(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	b := testutil.NewBuilder(t, repo).WithRegister("r1", "t1")
	// Two share a timestamp to exercise the tx id tie-break.
	for i, seed := range []string{"p1", "p2", "p3", "p4", "p5"} {
		b.WithTx("r1", seed, testutil.At(min(i, 3)), testutil.Sender("S"))
	}
	b.Build()

	filter := domain.TransactionFilter{RegisterID: "r1", Sender: "S"}
	all, total, err := repo.QueryTransactions(ctx, filter, nil)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	for i := 1; i < len(all); i++ {
		require.LessOrEqual(t, domain.CompareTransactions(all[i-1], all[i]), 0, "results must follow CompareTransactions")
	}

	var paged []*domain.Transaction
	for page := 1; page <= 3; page++ {
		items, total, err := repo.QueryTransactions(ctx, filter, &domain.Paging{Page: page, PageSize: 2})
		require.NoError(t, err)
		require.Equal(t, 5, total)
		paged = append(paged, items...)
	}
	require.Empty(t, cmp.Diff(all, paged, cmpOpts...), "pages must partition the full result")

	beyond, total, err := repo.QueryTransactions(ctx, filter, &domain.Paging{Page: 9, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Empty(t, beyond)

	for _, paging := range []domain.Paging{
		{Page: math.MaxInt / 50, PageSize: 100},
		{Page: math.MaxInt, PageSize: 2},
	} {
		far, total, err := repo.QueryTransactions(ctx, filter, &paging)
		require.NoError(t, err)
		require.Equal(t, 5, total)
		require.Empty(t, far, "page %d must not wrap around to the first rows", paging.Page)
	}
}

func newDocket(t *testing.T, registerID string, id uint64, prev string, state domain.DocketState, seeds ...string) *domain.Docket {
	t.Helper()
	ids := make([]string, len(seeds))
	for i, s := range seeds {
		ids[i] = testutil.TxID(s)
	}
	d := &domain.Docket{
		ID:             id,
		RegisterID:     registerID,
		TransactionIDs: ids,
		PreviousHash:   prev,
		State:          state,
		TimeStamp:      testutil.BaseTime.Add(time.Duration(id) * time.Minute),
	}
	h, err := d.ComputeHash()
	require.NoError(t, err)
	d.Hash = h
	return d
}

func testDocketSaveAndRead(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	testutil.NewBuilder(t, repo).WithRegister("r1", "t1").Build()

	_, err := repo.GetDocket(ctx, "r1", 1)
	requireNotFound(t, err, "docket")
	_, err = repo.LatestSealedDocket(ctx, "r1")
	requireNotFound(t, err, "sealed docket")

	d := newDocket(t, "r1", 1, "", domain.DocketStateProposed, "x", "y")
	require.NoError(t, repo.SaveDocket(ctx, d))

	got, err := repo.GetDocket(ctx, "r1", 1)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(d, got, cmpOpts...))

	d.State = domain.DocketStateAccepted
	d.TimeStamp = d.TimeStamp.Add(time.Second)
	require.NoError(t, repo.SaveDocket(ctx, d), "save is an upsert")
	got, err = repo.GetDocket(ctx, "r1", 1)
	require.NoError(t, err)
	require.Equal(t, domain.DocketStateAccepted, got.State)
	require.Equal(t, []string{testutil.TxID("x"), testutil.TxID("y")}, got.TransactionIDs, "order preserved")

	_, err = repo.LatestSealedDocket(ctx, "r1")
	requireNotFound(t, err, "sealed docket")
}

func testSealDocket(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	testutil.NewBuilder(t, repo).
		WithRegister("r1", "t1").
		WithTx("r1", "x").WithTx("r1", "y").WithTx("r1", "z").
		Build()

	first := newDocket(t, "r1", 1, "", domain.DocketStateSealed, "x", "y")
	require.NoError(t, repo.SealDocket(ctx, first, 0))

	reg, err := repo.GetRegister(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), reg.Height)

	latest, err := repo.LatestSealedDocket(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, first.Hash, latest.Hash)

	tx, err := repo.GetTransaction(ctx, "r1", testutil.TxID("x"))
	require.NoError(t, err)
	require.NotNil(t, tx.BlockNumber)
	require.Equal(t, uint64(1), *tx.BlockNumber)

	docketID := uint64(1)
	linked, _, err := repo.QueryTransactions(ctx, domain.TransactionFilter{RegisterID: "r1", DocketID: &docketID}, nil)
	require.NoError(t, err)
	require.Len(t, linked, 2)

	second := newDocket(t, "r1", 2, first.Hash, domain.DocketStateSealed, "z")
	require.NoError(t, repo.SealDocket(ctx, second, 1))
	third := newDocket(t, "r1", 3, second.Hash, domain.DocketStateProposed, "z")
	require.NoError(t, repo.SaveDocket(ctx, third))

	rng, err := repo.DocketRange(ctx, "r1", 2, 3)
	require.NoError(t, err)
	require.Len(t, rng, 2)
	require.Equal(t, uint64(2), rng[0].ID)
	require.Equal(t, uint64(3), rng[1].ID)

	list, err := repo.ListDockets(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 3)

	latest, err = repo.LatestSealedDocket(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), latest.ID, "unsealed dockets are not the latest sealed")

	empty, err := repo.DocketRange(ctx, "r1", 5, 9)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testSealDocketConflicts(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	testutil.NewBuilder(t, repo).WithRegister("r1", "t1").WithTx("r1", "x").Build()

	missing := newDocket(t, "nope", 1, "", domain.DocketStateSealed, "x")
	requireNotFound(t, repo.SealDocket(ctx, missing, 0), "register")

	wrongID := newDocket(t, "r1", 2, "", domain.DocketStateSealed, "x")
	require.ErrorIs(t, repo.SealDocket(ctx, wrongID, 0), domain.ErrConflict)

	d := newDocket(t, "r1", 1, "", domain.DocketStateSealed, "x")
	require.ErrorIs(t, repo.SealDocket(ctx, d, 3), domain.ErrConflict, "stale expected height")

	require.NoError(t, repo.SealDocket(ctx, d, 0))
	require.ErrorIs(t, repo.SealDocket(ctx, d, 0), domain.ErrConflict, "second seal at the same height")

	d.State = domain.DocketStateProposed
	require.ErrorIs(t, repo.SaveDocket(ctx, d), domain.ErrConflict, "sealed dockets are immutable")

	reg, err := repo.GetRegister(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), reg.Height, "failed seals leave the height untouched")

	got, err := repo.GetDocket(ctx, "r1", 1)
	require.NoError(t, err)
	require.Equal(t, domain.DocketStateSealed, got.State)
}
