// Package testutil provides fixtures for register core tests.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/zjrosen/register/internal/ledger/domain"
)

// BaseTime is the timestamp of the first fixture transaction. Each Tx built
// with At(n) is n seconds later, so ordering assertions are deterministic.
var BaseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// TxID returns a stable 64 character hex id derived from seed.
func TxID(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// TxOption configures a fixture transaction.
type TxOption func(*domain.Transaction)

// Sender sets the sender wallet.
func Sender(wallet string) TxOption {
	return func(tx *domain.Transaction) { tx.SenderWallet = wallet }
}

// Recipients sets the recipient wallets.
func Recipients(wallets ...string) TxOption {
	return func(tx *domain.Transaction) { tx.RecipientsWallets = wallets }
}

// Prev links the transaction to the fixture transaction built from seed.
func Prev(seed string) TxOption {
	return func(tx *domain.Transaction) { tx.PrevTxID = TxID(seed) }
}

// At sets the timestamp to BaseTime plus n seconds.
func At(n int) TxOption {
	return func(tx *domain.Transaction) { tx.Timestamp = BaseTime.Add(time.Duration(n) * time.Second) }
}

// Timestamp sets an explicit timestamp; the zero time leaves it for the manager to default.
func Timestamp(ts time.Time) TxOption {
	return func(tx *domain.Transaction) { tx.Timestamp = ts }
}

// Blueprint sets workflow metadata.
func Blueprint(blueprintID, instanceID string) TxOption {
	return func(tx *domain.Transaction) {
		tx.MetaData = &domain.MetaData{
			RegisterID:      tx.RegisterID,
			TransactionType: "action",
			BlueprintID:     blueprintID,
			InstanceID:      instanceID,
		}
	}
}

// Payloads attaches n payloads and sets PayloadCount to match.
func Payloads(n int) TxOption {
	return func(tx *domain.Transaction) {
		tx.Payloads = make([]domain.Payload, n)
		for i := range tx.Payloads {
			tx.Payloads[i] = domain.Payload{
				Hash:         TxID(tx.TxID + string(rune('a'+i))),
				Data:         "ZGF0YQ==",
				WalletAccess: []string{tx.SenderWallet},
				PayloadSize:  4,
			}
		}
		tx.PayloadCount = uint64(n)
	}
}

// PayloadCount overrides the declared count without touching the payloads.
func PayloadCount(n uint64) TxOption {
	return func(tx *domain.Transaction) { tx.PayloadCount = n }
}

// RawTxID overrides the generated tx id.
func RawTxID(id string) TxOption {
	return func(tx *domain.Transaction) { tx.TxID = id }
}

// NewTx builds a valid transaction for registerID whose TxID is TxID(seed).
func NewTx(registerID, seed string, opts ...TxOption) *domain.Transaction {
	tx := &domain.Transaction{
		TxID:         TxID(seed),
		RegisterID:   registerID,
		Version:      1,
		SenderWallet: "wallet-sender",
		Signature:    "sig-" + seed,
		Timestamp:    BaseTime,
		Context:      "test",
		Type:         "Action",
	}
	for _, opt := range opts {
		opt(tx)
	}
	return tx
}
