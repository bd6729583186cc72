package memory

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/infrastructure/repotest"
	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/testutil"
)

func TestStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) domain.Repository {
		return NewStore()
	})
}

// TestStore_QueryWhileSealing runs queries against transactions that
// concurrent seals are linking to dockets. Run with -race.
func TestStore_QueryWhileSealing(t *testing.T) {
	const rounds = 20
	ctx := context.Background()
	s := NewStore()
	b := testutil.NewBuilder(t, s).WithRegister("r", "t1")
	for i := range rounds {
		b.WithTx("r", "tx-"+strconv.Itoa(i), testutil.At(i), testutil.Sender("W"))
	}
	b.Build()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		filter := domain.TransactionFilter{RegisterID: "r", Sender: "W"}
		for {
			select {
			case <-done:
				return
			default:
			}
			txs, total, err := s.QueryTransactions(ctx, filter, &domain.Paging{Page: 1, PageSize: rounds})
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, rounds, total)
			for _, tx := range txs {
				if tx.BlockNumber != nil {
					assert.Positive(t, *tx.BlockNumber)
				}
			}
		}
	}()

	prev := ""
	for i := range rounds {
		d := &domain.Docket{
			ID:             uint64(i + 1),
			RegisterID:     "r",
			TransactionIDs: []string{testutil.TxID("tx-" + strconv.Itoa(i))},
			PreviousHash:   prev,
			State:          domain.DocketStateSealed,
			TimeStamp:      testutil.BaseTime,
		}
		h, err := d.ComputeHash()
		require.NoError(t, err)
		d.Hash = h
		require.NoError(t, s.SealDocket(ctx, d, uint64(i)))
		prev = h
	}
	close(done)
	wg.Wait()

	txs, _, err := s.QueryTransactions(ctx, domain.TransactionFilter{RegisterID: "r"}, nil)
	require.NoError(t, err)
	for _, tx := range txs {
		require.NotNil(t, tx.BlockNumber, "tx %s should be linked", tx.TxID)
	}
}
