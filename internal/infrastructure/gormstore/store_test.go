package gormstore

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zjrosen/register/internal/infrastructure/repotest"
	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/testutil"
)

// newTestStore opens a file-backed SQLite database so every pooled
// connection sees the same schema.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gorm.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_txlock=immediate"), GormConfig(false))
	require.NoError(t, err)

	store, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) domain.Repository {
		return newTestStore(t)
	})
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	_, err := New(store.DB())
	require.NoError(t, err)

	for _, e := range entities {
		require.True(t, store.DB().Migrator().HasTable(e))
	}
}

func TestStore_UpdateWithoutChangesFindsRow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	testutil.NewBuilder(t, store).WithRegister("r1", "t1").Build()

	reg, err := store.GetRegister(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, store.UpdateRegister(ctx, reg))
}

func TestStore_ManyRecipientsAcrossBatches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	b := testutil.NewBuilder(t, store).WithRegister("r1", "t1")
	for i := 0; i < batchSize+5; i++ {
		b.WithTx("r1", "tx-"+strconv.Itoa(i), testutil.Recipients("bob"))
	}
	b.Build()

	txs, total, err := store.QueryTransactions(ctx, domain.TransactionFilter{RegisterID: "r1", Recipient: "bob"}, nil)
	require.NoError(t, err)
	require.Equal(t, batchSize+5, total)
	require.Len(t, txs, batchSize+5)
	for _, tx := range txs {
		require.Equal(t, []string{"bob"}, tx.RecipientsWallets)
	}
}

func TestConfig_DSN(t *testing.T) {
	dsn := Config{Host: "db", Port: 3306, Username: "reg", Password: "pw", Database: "ledger"}.DSN()
	require.True(t, strings.HasPrefix(dsn, "reg:pw@tcp(db:3306)/ledger?"), dsn)
	require.Contains(t, dsn, "clientFoundRows=true")
	require.Contains(t, dsn, "parseTime=true")
}
