package application

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/tracing"
)

// scanPageSize is the batch size GetTransactions reads from the repository.
const scanPageSize = 200

// TransactionManager validates, stores and looks up transactions.
type TransactionManager struct {
	repo      domain.Repository
	publisher domain.EventPublisher
	settings  *settings
	existence *existenceChecker
}

// NewTransactionManager creates a TransactionManager.
func NewTransactionManager(repo domain.Repository, publisher domain.EventPublisher, opts ...Option) *TransactionManager {
	s := newSettings(opts)
	return &TransactionManager{
		repo:      repo,
		publisher: publisher,
		settings:  s,
		existence: newExistenceChecker(repo, s),
	}
}

// StoreTransaction is the only write path for transactions. Checks run in a
// fixed order and the first failure is returned. A missing timestamp defaults
// to now and a missing id is derived from the register and tx id. Docket
// linkage is never accepted from the caller.
func (m *TransactionManager) StoreTransaction(ctx context.Context, tx *domain.Transaction) (_ *domain.Transaction, err error) {
	if tx == nil {
		return nil, recordValidation(m.settings.metrics, "store_transaction",
			domain.NewValidationError("Transaction", "transaction is required"))
	}
	ctx, span := tracing.Start(ctx, m.settings.tracer, "store_transaction",
		tracing.AttrRegisterID.String(tx.RegisterID), tracing.AttrTxID.String(tx.TxID))
	defer func() { tracing.End(span, err) }()

	if tx.RegisterID == "" {
		return nil, recordValidation(m.settings.metrics, "store_transaction",
			domain.NewValidationError("RegisterId", "RegisterId is required"))
	}
	exists, err := m.existence.exists(ctx, tx.RegisterID)
	if err != nil {
		return nil, fmt.Errorf("store transaction: %w", err)
	}
	if !exists {
		return nil, &domain.NotFoundError{Entity: "register", Key: tx.RegisterID}
	}
	if err := tx.Validate(); err != nil {
		return nil, recordValidation(m.settings.metrics, "store_transaction", err)
	}

	stored := tx.Clone()
	stored.BlockNumber = nil
	if stored.Timestamp.IsZero() {
		stored.Timestamp = m.settings.now()
	}
	if stored.ID == "" {
		stored.ID = domain.DeriveTransactionID(stored.RegisterID, stored.TxID)
	}

	if err := m.repo.InsertTransaction(ctx, stored); err != nil {
		return nil, fmt.Errorf("store transaction: %w", err)
	}
	m.settings.metrics.TransactionStored()
	log.Debug(log.CatTx, "transaction stored", "register", stored.RegisterID, "tx", stored.TxID)

	publishAll(ctx, m.publisher, m.settings.metrics, domain.TransactionConfirmed{
		TransactionID: stored.TxID,
		RegisterID:    stored.RegisterID,
		SenderWallet:  stored.SenderWallet,
		ToWallets:     append([]string(nil), stored.RecipientsWallets...),
	})
	return stored.Clone(), nil
}

// GetTransaction returns the transaction, or found=false when it does not exist.
func (m *TransactionManager) GetTransaction(ctx context.Context, registerID, txID string) (*domain.Transaction, bool, error) {
	tx, err := m.repo.GetTransaction(ctx, registerID, txID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get transaction: %w", err)
	}
	return tx, true, nil
}

// GetTransactions lazily yields every transaction of the register, reading
// the repository in batches. Iteration stops at the first error, which is
// yielded with a nil transaction.
func (m *TransactionManager) GetTransactions(ctx context.Context, registerID string) iter.Seq2[*domain.Transaction, error] {
	return func(yield func(*domain.Transaction, error) bool) {
		filter := domain.TransactionFilter{RegisterID: registerID}
		for page := 1; ; page++ {
			batch, total, err := m.repo.QueryTransactions(ctx, filter, &domain.Paging{Page: page, PageSize: scanPageSize})
			if err != nil {
				yield(nil, fmt.Errorf("scan transactions: %w", err))
				return
			}
			for _, tx := range batch {
				if !yield(tx, nil) {
					return
				}
			}
			if len(batch) < scanPageSize || page*scanPageSize >= total {
				return
			}
		}
	}
}

// FilterTransactions narrows seq to the transactions keep accepts. Errors pass through.
func FilterTransactions(seq iter.Seq2[*domain.Transaction, error], keep func(*domain.Transaction) bool) iter.Seq2[*domain.Transaction, error] {
	return func(yield func(*domain.Transaction, error) bool) {
		for tx, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if keep(tx) && !yield(tx, nil) {
				return
			}
		}
	}
}

// CollectTransactions drains seq into a slice.
func CollectTransactions(seq iter.Seq2[*domain.Transaction, error]) ([]*domain.Transaction, error) {
	result := make([]*domain.Transaction, 0)
	for tx, err := range seq {
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, nil
}

// GetTransactionsBySender returns the transactions sent by wallet.
func (m *TransactionManager) GetTransactionsBySender(ctx context.Context, registerID, wallet string) ([]*domain.Transaction, error) {
	if wallet == "" {
		return []*domain.Transaction{}, nil
	}
	return m.find(ctx, domain.TransactionFilter{RegisterID: registerID, Sender: wallet})
}

// GetTransactionsByRecipient returns the transactions whose recipients include wallet.
func (m *TransactionManager) GetTransactionsByRecipient(ctx context.Context, registerID, wallet string) ([]*domain.Transaction, error) {
	if wallet == "" {
		return []*domain.Transaction{}, nil
	}
	return m.find(ctx, domain.TransactionFilter{RegisterID: registerID, Recipient: wallet})
}

// GetTransactionsByDocket returns the transactions linked to a sealed docket.
func (m *TransactionManager) GetTransactionsByDocket(ctx context.Context, registerID string, docketID uint64) ([]*domain.Transaction, error) {
	return m.find(ctx, domain.TransactionFilter{RegisterID: registerID, DocketID: &docketID})
}

// GetTransactionsByBlueprint returns the transactions whose metadata names blueprintID.
func (m *TransactionManager) GetTransactionsByBlueprint(ctx context.Context, registerID, blueprintID string) ([]*domain.Transaction, error) {
	if blueprintID == "" {
		return []*domain.Transaction{}, nil
	}
	return m.find(ctx, domain.TransactionFilter{RegisterID: registerID, BlueprintID: blueprintID})
}

// GetTransactionsByInstance returns the transactions whose metadata names instanceID.
func (m *TransactionManager) GetTransactionsByInstance(ctx context.Context, registerID, instanceID string) ([]*domain.Transaction, error) {
	if instanceID == "" {
		return []*domain.Transaction{}, nil
	}
	return m.find(ctx, domain.TransactionFilter{RegisterID: registerID, InstanceID: instanceID})
}

func (m *TransactionManager) find(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	txs, _, err := m.repo.QueryTransactions(ctx, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return txs, nil
}
