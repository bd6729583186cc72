package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/tracing"
)

// CreateRegisterOptions carries the optional CreateRegister flags.
type CreateRegisterOptions struct {
	// Advertise announces the register to peers.
	Advertise bool
	// IsFullReplica marks the node as holding the full register.
	IsFullReplica bool
}

// DefaultCreateRegisterOptions returns advertise=false, isFullReplica=true.
func DefaultCreateRegisterOptions() CreateRegisterOptions {
	return CreateRegisterOptions{Advertise: false, IsFullReplica: true}
}

// RegisterManager owns the register lifecycle.
type RegisterManager struct {
	repo      domain.RegisterRepository
	publisher domain.EventPublisher
	settings  *settings
	existence *existenceChecker
}

// NewRegisterManager creates a RegisterManager.
func NewRegisterManager(repo domain.RegisterRepository, publisher domain.EventPublisher, opts ...Option) *RegisterManager {
	s := newSettings(opts)
	return &RegisterManager{
		repo:      repo,
		publisher: publisher,
		settings:  s,
		existence: newExistenceChecker(repo, s),
	}
}

// CreateRegister validates and persists a new register at height 0 with
// status offline, then publishes RegisterCreated. Without opts the defaults
// of DefaultCreateRegisterOptions apply.
func (m *RegisterManager) CreateRegister(ctx context.Context, name, tenantID string, opts ...CreateRegisterOptions) (_ *domain.Register, err error) {
	ctx, span := tracing.Start(ctx, m.settings.tracer, "create", tracing.AttrTenantID.String(tenantID))
	defer func() { tracing.End(span, err) }()

	if err := domain.ValidateRegisterName(name); err != nil {
		return nil, recordValidation(m.settings.metrics, "create_register", err)
	}
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, recordValidation(m.settings.metrics, "create_register", err)
	}

	o := DefaultCreateRegisterOptions()
	if len(opts) > 0 {
		o = opts[0]
	}

	reg := domain.NewRegister(m.settings.newID(), name, tenantID, o.Advertise, o.IsFullReplica, m.settings.now())
	if err := m.repo.InsertRegister(ctx, reg); err != nil {
		return nil, fmt.Errorf("create register: %w", err)
	}

	m.existence.remember(ctx, reg.ID)
	m.settings.metrics.RegisterCreated()
	log.Info(log.CatRegister, "register created", "register", reg.ID, "tenant", tenantID)

	publishAll(ctx, m.publisher, m.settings.metrics, domain.RegisterCreated{
		RegisterID: reg.ID,
		Name:       reg.Name,
		TenantID:   reg.TenantID,
	})
	return reg, nil
}

// GetRegister returns the register, or found=false when it does not exist.
func (m *RegisterManager) GetRegister(ctx context.Context, id string) (*domain.Register, bool, error) {
	reg, err := m.repo.GetRegister(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get register: %w", err)
	}
	return reg, true, nil
}

// GetAllRegisters returns every register ordered by creation time.
func (m *RegisterManager) GetAllRegisters(ctx context.Context) ([]*domain.Register, error) {
	regs, err := m.repo.ListRegisters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registers: %w", err)
	}
	return regs, nil
}

// GetRegistersByTenant returns the tenant's registers ordered by creation time.
func (m *RegisterManager) GetRegistersByTenant(ctx context.Context, tenantID string) ([]*domain.Register, error) {
	regs, err := m.repo.ListRegistersByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list registers for tenant: %w", err)
	}
	return regs, nil
}

// UpdateRegister overwrites the register's mutable fields. Height and
// CreatedAt keep their stored values; height only moves by sealing.
func (m *RegisterManager) UpdateRegister(ctx context.Context, register *domain.Register) (_ *domain.Register, err error) {
	if register == nil {
		return nil, recordValidation(m.settings.metrics, "update_register", domain.NewValidationError("Register", "register is required"))
	}
	ctx, span := tracing.Start(ctx, m.settings.tracer, "update", tracing.AttrRegisterID.String(register.ID))
	defer func() { tracing.End(span, err) }()

	if err := domain.ValidateRegisterName(register.Name); err != nil {
		return nil, recordValidation(m.settings.metrics, "update_register", err)
	}
	if err := domain.ValidateTenantID(register.TenantID); err != nil {
		return nil, recordValidation(m.settings.metrics, "update_register", err)
	}
	if !register.Status.IsValid() {
		return nil, recordValidation(m.settings.metrics, "update_register",
			domain.NewValidationError("Status", fmt.Sprintf("unknown register status %q", register.Status)))
	}

	stored, err := m.repo.GetRegister(ctx, register.ID)
	if err != nil {
		return nil, fmt.Errorf("update register: %w", err)
	}

	updated := register.Clone()
	updated.Height = stored.Height
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = m.settings.now()
	if err := m.repo.UpdateRegister(ctx, updated); err != nil {
		return nil, fmt.Errorf("update register: %w", err)
	}
	return updated, nil
}

// UpdateStatus changes only the register's status.
func (m *RegisterManager) UpdateStatus(ctx context.Context, id string, status domain.RegisterStatus) (*domain.Register, error) {
	if !status.IsValid() {
		return nil, recordValidation(m.settings.metrics, "update_status",
			domain.NewValidationError("Status", fmt.Sprintf("unknown register status %q", status)))
	}
	reg, err := m.repo.GetRegister(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	reg.Status = status
	return m.UpdateRegister(ctx, reg)
}

// DeleteRegister removes a register owned by tenantID and publishes
// RegisterDeleted. A tenant mismatch is an AuthorizationError, not a not-found.
func (m *RegisterManager) DeleteRegister(ctx context.Context, id, tenantID string) (err error) {
	ctx, span := tracing.Start(ctx, m.settings.tracer, "delete",
		tracing.AttrRegisterID.String(id), tracing.AttrTenantID.String(tenantID))
	defer func() { tracing.End(span, err) }()

	reg, err := m.repo.GetRegister(ctx, id)
	if err != nil {
		return fmt.Errorf("delete register: %w", err)
	}
	if reg.TenantID != tenantID {
		log.Warn(log.CatRegister, "delete refused for foreign tenant", "register", id, "tenant", tenantID)
		return &domain.AuthorizationError{RegisterID: id, TenantID: tenantID}
	}
	if err := m.repo.DeleteRegister(ctx, id); err != nil {
		return fmt.Errorf("delete register: %w", err)
	}

	m.existence.forget(ctx, id)
	m.settings.metrics.RegisterDeleted()
	log.Info(log.CatRegister, "register deleted", "register", id, "tenant", tenantID)

	publishAll(ctx, m.publisher, m.settings.metrics, domain.RegisterDeleted{RegisterID: id, TenantID: tenantID})
	return nil
}

// RegisterExists reports whether the register is stored.
func (m *RegisterManager) RegisterExists(ctx context.Context, id string) (bool, error) {
	return m.existence.exists(ctx, id)
}

// GetRegisterCount returns the number of registers.
func (m *RegisterManager) GetRegisterCount(ctx context.Context) (int, error) {
	n, err := m.repo.CountRegisters(ctx)
	if err != nil {
		return 0, fmt.Errorf("count registers: %w", err)
	}
	return n, nil
}
