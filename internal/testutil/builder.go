package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/ledger/domain"
)

// Builder accumulates registers and transactions and writes them straight to a
// repository, bypassing the managers.
type Builder struct {
	t         testing.TB
	repo      domain.Repository
	registers []*domain.Register
	txs       []*domain.Transaction
}

// NewBuilder creates a builder for repo.
func NewBuilder(t testing.TB, repo domain.Repository) *Builder {
	t.Helper()
	return &Builder{t: t, repo: repo}
}

// WithRegister adds a register at height 0.
func (b *Builder) WithRegister(id, tenantID string) *Builder {
	b.registers = append(b.registers, domain.NewRegister(id, "register-"+id, tenantID, false, true, BaseTime))
	return b
}

// WithTx adds a transaction.
func (b *Builder) WithTx(registerID, seed string, opts ...TxOption) *Builder {
	tx := NewTx(registerID, seed, opts...)
	tx.ID = domain.DeriveTransactionID(tx.RegisterID, tx.TxID)
	b.txs = append(b.txs, tx)
	return b
}

// Build inserts registers first, then transactions.
func (b *Builder) Build() {
	b.t.Helper()
	ctx := context.Background()
	for _, r := range b.registers {
		require.NoError(b.t, b.repo.InsertRegister(ctx, r))
	}
	for _, tx := range b.txs {
		require.NoError(b.t, b.repo.InsertTransaction(ctx, tx))
	}
}
