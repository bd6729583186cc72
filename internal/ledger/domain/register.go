package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxRegisterNameLength is the longest register name accepted.
const MaxRegisterNameLength = 38

// RegisterStatus represents the replication state of a register.
type RegisterStatus string

const (
	// RegisterStatusOffline is the state of a freshly created register.
	RegisterStatusOffline RegisterStatus = "offline"

	// RegisterStatusOnline indicates the register is serving reads and writes.
	RegisterStatusOnline RegisterStatus = "online"

	// RegisterStatusChecking indicates the register is verifying its chain.
	RegisterStatusChecking RegisterStatus = "checking"

	// RegisterStatusRecovery indicates the register is catching up from peers.
	RegisterStatusRecovery RegisterStatus = "recovery"
)

// String returns the string representation of the status.
func (s RegisterStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized register status.
func (s RegisterStatus) IsValid() bool {
	switch s {
	case RegisterStatusOffline, RegisterStatusOnline, RegisterStatusChecking, RegisterStatusRecovery:
		return true
	default:
		return false
	}
}

// Register is a named ledger instance owned by a tenant.
type Register struct {
	// ID is an opaque, generated identifier.
	ID string
	// Name is the human-readable name (1-38 characters).
	Name string
	// TenantID identifies the owning tenant.
	TenantID string
	// Height is the number of sealed dockets. It never decreases.
	Height uint64
	// Status is the replication state.
	Status RegisterStatus
	// Advertise marks the register for announcement to peers.
	Advertise bool
	// IsFullReplica marks the register as holding the complete chain.
	IsFullReplica bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewRegister creates a register at height 0 in the offline state.
func NewRegister(id, name, tenantID string, advertise, isFullReplica bool, now time.Time) *Register {
	return &Register{
		ID:            id,
		Name:          name,
		TenantID:      tenantID,
		Height:        0,
		Status:        RegisterStatusOffline,
		Advertise:     advertise,
		IsFullReplica: isFullReplica,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a copy of the register that shares no state with the receiver.
func (r *Register) Clone() *Register {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ValidateRegisterName checks the 1-38 character, non-blank rule.
func ValidateRegisterName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("Name", "register name is required")
	}
	if utf8.RuneCountInString(name) > MaxRegisterNameLength {
		return NewValidationError("Name", "register name must be between 1 and 38 characters")
	}
	return nil
}

// ValidateTenantID checks that a tenant id is present.
func ValidateTenantID(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return NewValidationError("TenantID", "tenant id is required")
	}
	return nil
}
