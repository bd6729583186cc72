package application

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/zjrosen/register/internal/flags"
	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/tracing"
)

// DocketManager builds hash-chained dockets and drives them through
// init, proposed, accepted and sealed. Only sealing touches the register height.
type DocketManager struct {
	repo      domain.Repository
	publisher domain.EventPublisher
	settings  *settings
}

// NewDocketManager creates a DocketManager.
func NewDocketManager(repo domain.Repository, publisher domain.EventPublisher, opts ...Option) *DocketManager {
	return &DocketManager{
		repo:      repo,
		publisher: publisher,
		settings:  newSettings(opts),
	}
}

// lockRegister serializes create and seal for one register when the
// seal-lock flag is on. The returned func releases the lock.
func (m *DocketManager) lockRegister(registerID string) func() {
	if !m.settings.flags.Enabled(flags.FlagSealLock) {
		return func() {}
	}
	return m.settings.locks.lock(registerID)
}

// CreateDocket batches txIDs into a new docket at height+1, chained to the
// latest sealed docket. The docket is returned in state init and is neither
// persisted nor applied to the register.
func (m *DocketManager) CreateDocket(ctx context.Context, registerID string, txIDs []string) (_ *domain.Docket, err error) {
	ctx, span := tracing.Start(ctx, m.settings.tracer, "create_docket",
		tracing.AttrRegisterID.String(registerID), tracing.AttrTxCount.Int(len(txIDs)))
	defer func() { tracing.End(span, err) }()

	if len(txIDs) == 0 {
		return nil, recordValidation(m.settings.metrics, "create_docket",
			domain.NewValidationError("TransactionIds", "docket has no transactions"))
	}

	unlock := m.lockRegister(registerID)
	defer unlock()

	reg, err := m.repo.GetRegister(ctx, registerID)
	if err != nil {
		return nil, fmt.Errorf("create docket: %w", err)
	}

	previousHash := ""
	latest, err := m.repo.LatestSealedDocket(ctx, registerID)
	switch {
	case err == nil:
		previousHash = latest.Hash
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("create docket: %w", err)
	}

	d := &domain.Docket{
		ID:             reg.Height + 1,
		RegisterID:     registerID,
		TransactionIDs: slices.Clone(txIDs),
		PreviousHash:   previousHash,
		State:          domain.DocketStateInit,
		TimeStamp:      m.settings.now(),
	}
	if d.Hash, err = d.ComputeHash(); err != nil {
		return nil, fmt.Errorf("create docket: %w", err)
	}

	log.Debug(log.CatDocket, "docket created", "register", registerID, "docket", d.ID, "txs", len(txIDs))
	return d, nil
}

// ProposeDocket moves an init docket to proposed and persists it.
func (m *DocketManager) ProposeDocket(ctx context.Context, docket *domain.Docket) (*domain.Docket, error) {
	return m.advance(ctx, "propose_docket", docket, domain.DocketStateProposed)
}

// AcceptDocket moves a proposed docket to accepted and persists it. It is the
// hook an external review layer calls once it approves the docket.
func (m *DocketManager) AcceptDocket(ctx context.Context, docket *domain.Docket) (*domain.Docket, error) {
	return m.advance(ctx, "accept_docket", docket, domain.DocketStateAccepted)
}

// advance applies a non-terminal transition. docket is updated in place only
// after the new state is persisted.
func (m *DocketManager) advance(ctx context.Context, op string, docket *domain.Docket, target domain.DocketState) (_ *domain.Docket, err error) {
	if docket == nil {
		return nil, recordValidation(m.settings.metrics, op, domain.NewValidationError("Docket", "docket is required"))
	}
	ctx, span := tracing.Start(ctx, m.settings.tracer, op,
		tracing.AttrRegisterID.String(docket.RegisterID),
		tracing.AttrDocketID.Int64(int64(docket.ID)), //nolint:gosec // G115
		tracing.AttrDocketState.String(string(docket.State)))
	defer func() { tracing.End(span, err) }()

	next := docket.Clone()
	if err := next.TransitionTo(target, m.settings.now()); err != nil {
		return nil, err
	}
	if err := m.repo.SaveDocket(ctx, next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	*docket = *next
	log.Debug(log.CatDocket, "docket advanced", "register", docket.RegisterID, "docket", docket.ID, "state", target)
	return docket, nil
}

// SealDocket seals a proposed or accepted docket. The sealed docket, the
// height increment and the transactions' docket linkage are committed in one
// repository call against the height the register had when the docket was
// created. DocketConfirmed and then RegisterHeightUpdated are published once
// each after the commit. docket is updated in place on success.
func (m *DocketManager) SealDocket(ctx context.Context, docket *domain.Docket) (_ *domain.Docket, err error) {
	if docket == nil {
		return nil, recordValidation(m.settings.metrics, "seal_docket", domain.NewValidationError("Docket", "docket is required"))
	}
	ctx, span := tracing.Start(ctx, m.settings.tracer, "seal_docket",
		tracing.AttrRegisterID.String(docket.RegisterID),
		tracing.AttrDocketID.Int64(int64(docket.ID)), //nolint:gosec // G115
		tracing.AttrDocketState.String(string(docket.State)))
	defer func() { tracing.End(span, err) }()

	start := m.settings.now()
	sealed := docket.Clone()
	if err := sealed.TransitionTo(domain.DocketStateSealed, start); err != nil {
		return nil, err
	}

	if docket.ID == 0 {
		return nil, recordValidation(m.settings.metrics, "seal_docket", domain.NewValidationError("Id", "docket id must be at least 1"))
	}

	unlock := m.lockRegister(docket.RegisterID)
	defer unlock()

	oldHeight := docket.ID - 1
	if err := m.repo.SealDocket(ctx, sealed, oldHeight); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			m.settings.metrics.SealConflict()
			log.Warn(log.CatDocket, "seal lost height race", "register", docket.RegisterID, "docket", docket.ID)
		}
		return nil, fmt.Errorf("seal docket: %w", err)
	}
	*docket = *sealed

	newHeight := oldHeight + 1
	m.settings.metrics.DocketSealed(newHeight, m.settings.now().Sub(start))
	span.SetAttributes(tracing.AttrHeight.Int64(int64(newHeight))) //nolint:gosec // G115
	log.Info(log.CatDocket, "docket sealed", "register", docket.RegisterID, "docket", docket.ID, "height", newHeight)

	publishAll(ctx, m.publisher, m.settings.metrics,
		domain.DocketConfirmed{
			RegisterID:     docket.RegisterID,
			DocketID:       docket.ID,
			Hash:           docket.Hash,
			TransactionIDs: slices.Clone(docket.TransactionIDs),
		},
		domain.RegisterHeightUpdated{
			RegisterID: docket.RegisterID,
			OldHeight:  oldHeight,
			NewHeight:  newHeight,
		},
	)
	return docket, nil
}

// GetDocket returns the docket, or found=false when it does not exist.
func (m *DocketManager) GetDocket(ctx context.Context, registerID string, id uint64) (*domain.Docket, bool, error) {
	d, err := m.repo.GetDocket(ctx, registerID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get docket: %w", err)
	}
	return d, true, nil
}

// GetDockets returns every stored docket of the register, ascending by id.
func (m *DocketManager) GetDockets(ctx context.Context, registerID string) ([]*domain.Docket, error) {
	ds, err := m.repo.ListDockets(ctx, registerID)
	if err != nil {
		return nil, fmt.Errorf("list dockets: %w", err)
	}
	return ds, nil
}

// GetDocketRange returns the dockets with from <= id <= to, ascending by id.
func (m *DocketManager) GetDocketRange(ctx context.Context, registerID string, from, to uint64) ([]*domain.Docket, error) {
	if from > to {
		return nil, recordValidation(m.settings.metrics, "docket_range",
			domain.NewValidationError("from", fmt.Sprintf("range start %d is after end %d", from, to)))
	}
	ds, err := m.repo.DocketRange(ctx, registerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("docket range: %w", err)
	}
	return ds, nil
}

// GetLatestDocket returns the highest sealed docket, or found=false for a
// register that has sealed nothing.
func (m *DocketManager) GetLatestDocket(ctx context.Context, registerID string) (*domain.Docket, bool, error) {
	d, err := m.repo.LatestSealedDocket(ctx, registerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest docket: %w", err)
	}
	return d, true, nil
}

// VerifyDocketHash reports whether the docket's stored hash matches its
// current contents. A mismatch is a result, not an error.
func (m *DocketManager) VerifyDocketHash(docket *domain.Docket) (bool, error) {
	if docket == nil {
		return false, recordValidation(m.settings.metrics, "verify_docket", domain.NewValidationError("Docket", "docket is required"))
	}
	return docket.VerifyHash()
}
