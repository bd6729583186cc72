package domain

import (
	"maps"
	"slices"
	"time"
)

// TxIDLength is the exact length of a transaction id (a hex-encoded SHA-256 digest).
const TxIDLength = 64

// transactionIDScheme prefixes derived transaction identifiers.
const transactionIDScheme = "did:register:"

// Payload is an access-scoped data blob attached to a transaction.
// The core never decrypts Data; it is carried verbatim.
type Payload struct {
	Hash         string
	Data         string
	WalletAccess []string
	PayloadSize  uint64
}

// MetaData carries workflow context for a transaction.
type MetaData struct {
	RegisterID      string
	TransactionType string
	BlueprintID     string
	InstanceID      string
	// ActionID and NextActionID are nil when not supplied.
	ActionID     *int32
	NextActionID *int32
	TrackingData map[string]string
}

// Transaction is a signed ledger entry.
type Transaction struct {
	// ID is the derived identifier, see DeriveTransactionID.
	ID string
	// TxID is the 64 character transaction hash.
	TxID string
	// PrevTxID is the TxID of the logical predecessor, empty for a chain root.
	PrevTxID          string
	RegisterID        string
	Version           uint32
	SenderWallet      string
	RecipientsWallets []string
	Signature         string
	Timestamp         time.Time
	PayloadCount      uint64
	Payloads          []Payload
	// MetaData is nil when the caller supplied none.
	MetaData *MetaData
	// BlockNumber is the id of the sealed docket that includes this transaction.
	BlockNumber *uint64
	Context     string
	Type        string
}

// DeriveTransactionID returns the canonical identifier for a transaction.
// The same register and tx id always produce the same value.
func DeriveTransactionID(registerID, txID string) string {
	return transactionIDScheme + registerID + "/tx/" + txID
}

// HasRecipient reports whether wallet is one of the transaction's recipients.
func (t *Transaction) HasRecipient(wallet string) bool {
	return slices.Contains(t.RecipientsWallets, wallet)
}

// Involves reports whether wallet participates as sender or recipient.
func (t *Transaction) Involves(wallet string, asSender, asRecipient bool) bool {
	if asSender && t.SenderWallet == wallet {
		return true
	}
	return asRecipient && t.HasRecipient(wallet)
}

// BlueprintID returns the blueprint id from the metadata, or "" when absent.
func (t *Transaction) BlueprintID() string {
	if t.MetaData == nil {
		return ""
	}
	return t.MetaData.BlueprintID
}

// InstanceID returns the instance id from the metadata, or "" when absent.
func (t *Transaction) InstanceID() string {
	if t.MetaData == nil {
		return ""
	}
	return t.MetaData.InstanceID
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.RecipientsWallets = slices.Clone(t.RecipientsWallets)
	if t.Payloads != nil {
		c.Payloads = make([]Payload, len(t.Payloads))
		for i, p := range t.Payloads {
			p.WalletAccess = slices.Clone(p.WalletAccess)
			c.Payloads[i] = p
		}
	}
	if t.MetaData != nil {
		md := *t.MetaData
		if md.ActionID != nil {
			v := *md.ActionID
			md.ActionID = &v
		}
		if md.NextActionID != nil {
			v := *md.NextActionID
			md.NextActionID = &v
		}
		md.TrackingData = maps.Clone(t.MetaData.TrackingData)
		c.MetaData = &md
	}
	if t.BlockNumber != nil {
		v := *t.BlockNumber
		c.BlockNumber = &v
	}
	return &c
}

// Validate checks the caller-supplied fields in order; the first failure wins.
// Register existence is checked by the TransactionManager before this runs.
func (t *Transaction) Validate() error {
	if len(t.TxID) != TxIDLength {
		return NewValidationError("TxId", "TxId must be exactly 64 characters")
	}
	if t.SenderWallet == "" {
		return NewValidationError("SenderWallet", "SenderWallet is required")
	}
	if t.Signature == "" {
		return NewValidationError("Signature", "Signature is required")
	}
	if t.PayloadCount != uint64(len(t.Payloads)) {
		return NewValidationError("PayloadCount", "PayloadCount does not match the number of payloads")
	}
	return nil
}
