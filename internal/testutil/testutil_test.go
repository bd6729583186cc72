package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/ledger/domain"
)

func TestTxID(t *testing.T) {
	id := TxID("root")
	require.Len(t, id, domain.TxIDLength)
	require.Equal(t, id, TxID("root"))
	require.NotEqual(t, id, TxID("a"))
}

func TestNewTx_IsValid(t *testing.T) {
	tx := NewTx("reg", "seed", Payloads(3), Blueprint("bp", "inst"), Prev("parent"), At(5))
	require.NoError(t, tx.Validate())
	require.Equal(t, uint64(3), tx.PayloadCount)
	require.Equal(t, "bp", tx.BlueprintID())
	require.Equal(t, TxID("parent"), tx.PrevTxID)
	require.Equal(t, BaseTime.Add(5*time.Second), tx.Timestamp)
}
