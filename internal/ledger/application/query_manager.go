package application

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/tracing"
)

// Paging limits.
const (
	// MaxPageSize bounds the wallet, sender and blueprint queries. Values
	// outside 1..MaxPageSize are rejected.
	MaxPageSize = 100

	// DefaultTraversalPageSize replaces an invalid page size on the
	// predecessor query.
	DefaultTraversalPageSize = 20

	// MaxTraversalPageSize caps the predecessor query's page size.
	MaxTraversalPageSize = 200
)

// statsBatchSize is how many transactions GetTransactionStatistics reads at a time.
const statsBatchSize = 500

// WalletQueryOptions selects which side of a transaction a wallet query matches.
type WalletQueryOptions struct {
	AsSender    bool
	AsRecipient bool
}

// DefaultWalletQueryOptions matches the wallet as sender or recipient.
func DefaultWalletQueryOptions() WalletQueryOptions {
	return WalletQueryOptions{AsSender: true, AsRecipient: true}
}

// TransactionStatistics aggregates a register's transactions.
type TransactionStatistics struct {
	RegisterID        string
	TotalTransactions int
	// UniqueWallets counts the union of senders and recipients.
	UniqueWallets    int
	UniqueSenders    int
	UniqueRecipients int
	// TotalPayloads sums PayloadCount over every transaction.
	TotalPayloads uint64
	// EarliestTransaction and LatestTransaction are nil for an empty register.
	EarliestTransaction *time.Time
	LatestTransaction   *time.Time
}

// QueryManager serves paginated and aggregate reads. It depends only on the
// transaction repository.
type QueryManager struct {
	repo     domain.TransactionRepository
	settings *settings
}

// NewQueryManager creates a QueryManager.
func NewQueryManager(repo domain.TransactionRepository, opts ...Option) *QueryManager {
	return &QueryManager{repo: repo, settings: newSettings(opts)}
}

// checkPaging rejects page < 1 and page sizes outside 1..MaxPageSize.
func checkPaging(page, pageSize int) error {
	if page < 1 {
		return domain.NewValidationError("page", fmt.Sprintf("page must be at least 1, got %d", page))
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return domain.NewValidationError("pageSize",
			fmt.Sprintf("pageSize must be between 1 and %d, got %d", MaxPageSize, pageSize))
	}
	return nil
}

// clampTraversalPaging maps page < 1 to 1, pageSize < 1 to the default and
// pageSize above the cap to the cap.
func clampTraversalPaging(page, pageSize int) domain.Paging {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultTraversalPageSize
	case pageSize > MaxTraversalPageSize:
		pageSize = MaxTraversalPageSize
	}
	return domain.Paging{Page: page, PageSize: pageSize}
}

func (q *QueryManager) page(ctx context.Context, op string, filter domain.TransactionFilter, paging domain.Paging) (_ *domain.Page[*domain.Transaction], err error) {
	ctx, span := tracing.Start(ctx, q.settings.tracer, op,
		tracing.AttrRegisterID.String(filter.RegisterID),
		tracing.AttrPage.Int(paging.Page),
		tracing.AttrPageSize.Int(paging.PageSize))
	defer func() { tracing.End(span, err) }()

	items, total, err := q.repo.QueryTransactions(ctx, filter, &paging)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	span.SetAttributes(tracing.AttrResultCount.Int(total))
	return domain.NewPage(items, paging, total), nil
}

// GetTransactionsByWallet returns the transactions in which wallet takes part,
// newest first. A transaction where the wallet is both sender and recipient
// is returned once. Without opts both sides match.
func (q *QueryManager) GetTransactionsByWallet(ctx context.Context, registerID, wallet string, page, pageSize int, opts ...WalletQueryOptions) (*domain.Page[*domain.Transaction], error) {
	if err := checkPaging(page, pageSize); err != nil {
		return nil, recordValidation(q.settings.metrics, "query_by_wallet", err)
	}
	if wallet == "" {
		return nil, recordValidation(q.settings.metrics, "query_by_wallet", domain.NewValidationError("wallet", "wallet is required"))
	}
	o := DefaultWalletQueryOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	filter := domain.TransactionFilter{
		RegisterID: registerID,
		Wallet:     &domain.WalletFilter{Wallet: wallet, AsSender: o.AsSender, AsRecipient: o.AsRecipient},
	}
	return q.page(ctx, "query_by_wallet", filter, domain.Paging{Page: page, PageSize: pageSize})
}

// GetTransactionsBySender returns the transactions sent by wallet, newest first.
func (q *QueryManager) GetTransactionsBySender(ctx context.Context, registerID, wallet string, page, pageSize int) (*domain.Page[*domain.Transaction], error) {
	if err := checkPaging(page, pageSize); err != nil {
		return nil, recordValidation(q.settings.metrics, "query_by_sender", err)
	}
	if wallet == "" {
		return nil, recordValidation(q.settings.metrics, "query_by_sender", domain.NewValidationError("wallet", "wallet is required"))
	}
	filter := domain.TransactionFilter{RegisterID: registerID, Sender: wallet}
	return q.page(ctx, "query_by_sender", filter, domain.Paging{Page: page, PageSize: pageSize})
}

// GetTransactionsByBlueprint returns the transactions of a blueprint, narrowed
// to one instance when instanceID is non-nil and non-empty. Paging follows the
// same rules as the wallet query.
func (q *QueryManager) GetTransactionsByBlueprint(ctx context.Context, registerID, blueprintID string, instanceID *string, page, pageSize int) (*domain.Page[*domain.Transaction], error) {
	if err := checkPaging(page, pageSize); err != nil {
		return nil, recordValidation(q.settings.metrics, "query_by_blueprint", err)
	}
	if blueprintID == "" {
		return nil, recordValidation(q.settings.metrics, "query_by_blueprint", domain.NewValidationError("blueprintId", "blueprintId is required"))
	}
	filter := domain.TransactionFilter{RegisterID: registerID, BlueprintID: blueprintID}
	if instanceID != nil {
		filter.InstanceID = *instanceID
	}
	return q.page(ctx, "query_by_blueprint", filter, domain.Paging{Page: page, PageSize: pageSize})
}

// GetTransactionsByPrevTxID returns the successors of prevTxID, newest first.
// More than one result is a fork; none means prevTxID is a tip or was never
// stored. Paging is clamped rather than rejected, and an empty prevTxID
// yields an empty page.
func (q *QueryManager) GetTransactionsByPrevTxID(ctx context.Context, registerID, prevTxID string, page, pageSize int) (*domain.Page[*domain.Transaction], error) {
	paging := clampTraversalPaging(page, pageSize)
	if prevTxID == "" {
		return domain.NewPage[*domain.Transaction](nil, paging, 0), nil
	}
	filter := domain.TransactionFilter{RegisterID: registerID, PrevTxID: &prevTxID}
	return q.page(ctx, "query_by_prev_tx", filter, paging)
}

// GetTransactionStatistics scans the register once and aggregates it.
func (q *QueryManager) GetTransactionStatistics(ctx context.Context, registerID string) (_ *TransactionStatistics, err error) {
	ctx, span := tracing.Start(ctx, q.settings.tracer, "statistics", tracing.AttrRegisterID.String(registerID))
	defer func() { tracing.End(span, err) }()

	stats := &TransactionStatistics{RegisterID: registerID}
	wallets := make(map[string]struct{})
	senders := make(map[string]struct{})
	recipients := make(map[string]struct{})
	var earliest, latest time.Time

	filter := domain.TransactionFilter{RegisterID: registerID}
	for page := 1; ; page++ {
		batch, total, err := q.repo.QueryTransactions(ctx, filter, &domain.Paging{Page: page, PageSize: statsBatchSize})
		if err != nil {
			return nil, fmt.Errorf("statistics: %w", err)
		}
		for _, tx := range batch {
			stats.TotalTransactions++
			stats.TotalPayloads += tx.PayloadCount
			senders[tx.SenderWallet] = struct{}{}
			wallets[tx.SenderWallet] = struct{}{}
			for _, r := range tx.RecipientsWallets {
				recipients[r] = struct{}{}
				wallets[r] = struct{}{}
			}
			if earliest.IsZero() || tx.Timestamp.Before(earliest) {
				earliest = tx.Timestamp
			}
			if latest.IsZero() || tx.Timestamp.After(latest) {
				latest = tx.Timestamp
			}
		}
		if len(batch) < statsBatchSize || page*statsBatchSize >= total {
			break
		}
	}

	stats.UniqueWallets = len(wallets)
	stats.UniqueSenders = len(senders)
	stats.UniqueRecipients = len(recipients)
	if stats.TotalTransactions > 0 {
		stats.EarliestTransaction = &earliest
		stats.LatestTransaction = &latest
	}
	return stats, nil
}
