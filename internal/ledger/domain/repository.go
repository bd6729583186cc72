package domain

import (
	"context"
	"slices"
)

// WalletFilter matches transactions a wallet participates in.
type WalletFilter struct {
	Wallet      string
	AsSender    bool
	AsRecipient bool
}

// TransactionFilter narrows a transaction query. Zero-valued fields are ignored.
type TransactionFilter struct {
	// RegisterID scopes the query. Required.
	RegisterID string

	// Sender matches SenderWallet exactly.
	Sender string

	// Recipient matches when the wallet is contained in RecipientsWallets.
	Recipient string

	// Wallet matches sender OR recipient per its flags. A transaction is
	// returned once even when the wallet is both sender and recipient.
	Wallet *WalletFilter

	// BlueprintID and InstanceID match the corresponding MetaData fields.
	BlueprintID string
	InstanceID  string

	// PrevTxID matches the predecessor reference. Nil means no filtering.
	PrevTxID *string

	// DocketID matches the sealed docket linkage. Nil means no filtering.
	DocketID *uint64
}

// Matches reports whether tx satisfies every set field of the filter.
func (f TransactionFilter) Matches(tx *Transaction) bool {
	if tx == nil || tx.RegisterID != f.RegisterID {
		return false
	}
	if f.Sender != "" && tx.SenderWallet != f.Sender {
		return false
	}
	if f.Recipient != "" && !slices.Contains(tx.RecipientsWallets, f.Recipient) {
		return false
	}
	if f.Wallet != nil && !tx.Involves(f.Wallet.Wallet, f.Wallet.AsSender, f.Wallet.AsRecipient) {
		return false
	}
	if f.BlueprintID != "" && tx.BlueprintID() != f.BlueprintID {
		return false
	}
	if f.InstanceID != "" && tx.InstanceID() != f.InstanceID {
		return false
	}
	if f.PrevTxID != nil && tx.PrevTxID != *f.PrevTxID {
		return false
	}
	if f.DocketID != nil && (tx.BlockNumber == nil || *tx.BlockNumber != *f.DocketID) {
		return false
	}
	return true
}

// CompareTransactions orders newest first, breaking timestamp ties by TxID ascending.
// Every backend returns query results in this order.
func CompareTransactions(a, b *Transaction) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.TxID < b.TxID:
		return -1
	case a.TxID > b.TxID:
		return 1
	default:
		return 0
	}
}

// RegisterRepository persists Register entities.
type RegisterRepository interface {
	// InsertRegister stores a new register.
	// Returns ErrConflict if the id is already taken.
	InsertRegister(ctx context.Context, register *Register) error

	// GetRegister retrieves a register by id.
	// Returns NotFoundError if no register exists.
	GetRegister(ctx context.Context, id string) (*Register, error)

	// ListRegisters returns every register ordered by creation time.
	ListRegisters(ctx context.Context) ([]*Register, error)

	// ListRegistersByTenant returns the tenant's registers ordered by creation time.
	ListRegistersByTenant(ctx context.Context, tenantID string) ([]*Register, error)

	// UpdateRegister overwrites the mutable fields of an existing register.
	// Height is written as given; callers are responsible for preserving it.
	// Returns NotFoundError if no register exists.
	UpdateRegister(ctx context.Context, register *Register) error

	// DeleteRegister removes a register. Its transactions and dockets are kept.
	// Returns NotFoundError if no register exists.
	DeleteRegister(ctx context.Context, id string) error

	// CountRegisters returns the number of registers.
	CountRegisters(ctx context.Context) (int, error)
}

// TransactionRepository persists Transaction entities.
type TransactionRepository interface {
	// InsertTransaction stores a new transaction.
	// Returns ErrConflict if (RegisterID, TxID) is already stored.
	InsertTransaction(ctx context.Context, tx *Transaction) error

	// GetTransaction retrieves a transaction by register and tx id.
	// Returns NotFoundError if no transaction exists.
	GetTransaction(ctx context.Context, registerID, txID string) (*Transaction, error)

	// QueryTransactions returns the transactions matching filter, ordered by
	// CompareTransactions, and the total number of matches before paging.
	// A nil paging returns every match.
	QueryTransactions(ctx context.Context, filter TransactionFilter, paging *Paging) ([]*Transaction, int, error)
}

// DocketRepository persists Docket entities.
type DocketRepository interface {
	// SaveDocket inserts or updates an unsealed docket.
	// Returns ErrConflict if the stored docket is already sealed.
	SaveDocket(ctx context.Context, docket *Docket) error

	// GetDocket retrieves a docket by register and id.
	// Returns NotFoundError if no docket exists.
	GetDocket(ctx context.Context, registerID string, id uint64) (*Docket, error)

	// ListDockets returns every stored docket of a register, ascending by id.
	ListDockets(ctx context.Context, registerID string) ([]*Docket, error)

	// DocketRange returns the stored dockets with from <= id <= to, ascending by id.
	DocketRange(ctx context.Context, registerID string, from, to uint64) ([]*Docket, error)

	// LatestSealedDocket returns the sealed docket with the highest id.
	// Returns NotFoundError if the register has no sealed docket.
	LatestSealedDocket(ctx context.Context, registerID string) (*Docket, error)

	// SealDocket atomically persists docket (State must be Sealed), moves the
	// register height from expectedHeight to expectedHeight+1, and sets
	// BlockNumber on the docket's transactions.
	// Returns NotFoundError if the register does not exist and ErrConflict if the
	// stored height is not expectedHeight or docket.ID is not expectedHeight+1.
	SealDocket(ctx context.Context, docket *Docket, expectedHeight uint64) error
}

// Repository aggregates the three stores the managers are written against.
type Repository interface {
	RegisterRepository
	TransactionRepository
	DocketRepository
}
