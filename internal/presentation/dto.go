package presentation

import (
	"time"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/ledger/application"
	"github.com/zjrosen/register/internal/ledger/domain"
)

// RegisterDTO represents a register for presentation
type RegisterDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TenantID      string    `json:"tenant_id"`
	Height        uint64    `json:"height"`
	Status        string    `json:"status"`
	Advertise     bool      `json:"advertise"`
	IsFullReplica bool      `json:"is_full_replica"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VerificationDTO is the outcome of a chain check.
type VerificationDTO struct {
	RegisterID    string    `json:"register_id"`
	Valid         bool      `json:"valid"`
	Height        uint64    `json:"height"`
	SealedDockets int       `json:"sealed_dockets"`
	Issue         *IssueDTO `json:"issue,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// IssueDTO locates the first chain defect.
type IssueDTO struct {
	DocketID uint64 `json:"docket_id"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}

// StatisticsDTO summarizes a register's transactions.
type StatisticsDTO struct {
	RegisterID          string     `json:"register_id"`
	TotalTransactions   int        `json:"total_transactions"`
	UniqueWallets       int        `json:"unique_wallets"`
	UniqueSenders       int        `json:"unique_senders"`
	UniqueRecipients    int        `json:"unique_recipients"`
	TotalPayloads       uint64     `json:"total_payloads"`
	EarliestTransaction *time.Time `json:"earliest_transaction,omitempty"`
	LatestTransaction   *time.Time `json:"latest_transaction,omitempty"`
}

// WalkDTO is a forward walk along the predecessor chain.
type WalkDTO struct {
	Path             []string  `json:"path"`
	Forks            []ForkDTO `json:"forks"` // always present
	Tip              string    `json:"tip,omitempty"`
	StepLimitReached bool      `json:"step_limit_reached"`
	Cycle            bool      `json:"cycle"`
}

// ForkDTO lists the successors of a transaction claimed more than once.
type ForkDTO struct {
	TxID       string   `json:"tx_id"`
	Successors []string `json:"successors"`
}

// FromDomainRegister converts a domain register to a DTO
func FromDomainRegister(r *domain.Register) RegisterDTO {
	return RegisterDTO{
		ID:            r.ID,
		Name:          r.Name,
		TenantID:      r.TenantID,
		Height:        r.Height,
		Status:        string(r.Status),
		Advertise:     r.Advertise,
		IsFullReplica: r.IsFullReplica,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// FromDomainRegisters converts a slice, returning an empty (not nil) slice.
func FromDomainRegisters(registers []*domain.Register) []RegisterDTO {
	dtos := make([]RegisterDTO, 0, len(registers))
	for _, r := range registers {
		dtos = append(dtos, FromDomainRegister(r))
	}
	return dtos
}

// FromVerification converts a chain verification result.
func FromVerification(v *application.ChainVerification) VerificationDTO {
	dto := VerificationDTO{
		RegisterID:    v.RegisterID,
		Valid:         v.Valid(),
		Height:        v.Height,
		SealedDockets: v.SealedDockets,
	}
	if v.Issue != nil {
		dto.Issue = &IssueDTO{DocketID: v.Issue.DocketID, Kind: string(v.Issue.Kind), Detail: v.Issue.Detail}
	}
	return dto
}

// FromStatistics converts transaction statistics.
func FromStatistics(s *application.TransactionStatistics) StatisticsDTO {
	return StatisticsDTO{
		RegisterID:          s.RegisterID,
		TotalTransactions:   s.TotalTransactions,
		UniqueWallets:       s.UniqueWallets,
		UniqueSenders:       s.UniqueSenders,
		UniqueRecipients:    s.UniqueRecipients,
		TotalPayloads:       s.TotalPayloads,
		EarliestTransaction: s.EarliestTransaction,
		LatestTransaction:   s.LatestTransaction,
	}
}

// FromWalk converts a chain walk.
func FromWalk(w *application.ChainWalk) WalkDTO {
	forks := make([]ForkDTO, 0, len(w.Forks))
	for _, f := range w.Forks {
		forks = append(forks, ForkDTO{TxID: f.TxID, Successors: f.Successors})
	}
	return WalkDTO{
		Path:             w.Path,
		Forks:            forks,
		Tip:              w.Tip,
		StepLimitReached: w.StepLimitReached,
		Cycle:            w.Cycle,
	}
}

// FromChainResult converts one register's verification outcome.
func FromChainResult(r app.ChainResult) VerificationDTO {
	if r.Err != nil {
		return VerificationDTO{RegisterID: r.RegisterID, Error: r.Err.Error()}
	}
	return FromVerification(r.Verification)
}

// FromChainResults converts results, keeping their order.
func FromChainResults(results []app.ChainResult) []VerificationDTO {
	dtos := make([]VerificationDTO, 0, len(results))
	for _, r := range results {
		dtos = append(dtos, FromChainResult(r))
	}
	return dtos
}
