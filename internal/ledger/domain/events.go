package domain

import "context"

// EventKind identifies an Event variant without reflection.
type EventKind string

const (
	KindRegisterCreated       EventKind = "register.created"
	KindRegisterDeleted       EventKind = "register.deleted"
	KindRegisterHeightUpdated EventKind = "register.height_updated"
	KindTransactionConfirmed  EventKind = "transaction.confirmed"
	KindDocketConfirmed       EventKind = "docket.confirmed"
)

// Event is a lifecycle notification. The set of implementations is closed.
type Event interface {
	Kind() EventKind
	// Register returns the id of the register the event concerns.
	Register() string
	isEvent()
}

// EventPublisher delivers events. Implementations may be lossy; the managers
// never fail an operation because Publish returned an error.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// RegisterCreated is published after a register is persisted.
type RegisterCreated struct {
	RegisterID string
	Name       string
	TenantID   string
}

// RegisterDeleted is published after a register is removed.
type RegisterDeleted struct {
	RegisterID string
	TenantID   string
}

// RegisterHeightUpdated is published after every seal.
type RegisterHeightUpdated struct {
	RegisterID string
	OldHeight  uint64
	NewHeight  uint64
}

// TransactionConfirmed is published after a transaction is stored.
type TransactionConfirmed struct {
	TransactionID string
	RegisterID    string
	SenderWallet  string
	ToWallets     []string
}

// DocketConfirmed is published after a docket is sealed.
type DocketConfirmed struct {
	RegisterID     string
	DocketID       uint64
	Hash           string
	TransactionIDs []string
}

func (RegisterCreated) Kind() EventKind       { return KindRegisterCreated }
func (RegisterDeleted) Kind() EventKind       { return KindRegisterDeleted }
func (RegisterHeightUpdated) Kind() EventKind { return KindRegisterHeightUpdated }
func (TransactionConfirmed) Kind() EventKind  { return KindTransactionConfirmed }
func (DocketConfirmed) Kind() EventKind       { return KindDocketConfirmed }

func (e RegisterCreated) Register() string       { return e.RegisterID }
func (e RegisterDeleted) Register() string       { return e.RegisterID }
func (e RegisterHeightUpdated) Register() string { return e.RegisterID }
func (e TransactionConfirmed) Register() string  { return e.RegisterID }
func (e DocketConfirmed) Register() string       { return e.RegisterID }

func (RegisterCreated) isEvent()       {}
func (RegisterDeleted) isEvent()       {}
func (RegisterHeightUpdated) isEvent() {}
func (TransactionConfirmed) isEvent()  {}
func (DocketConfirmed) isEvent()       {}
