package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gibson042/canonicaljson-go"
)

// DocketHashVersion is the version stamped into every docket hash preimage.
const DocketHashVersion = 1

// docketHashPreimage is the v1 encoding of a docket's hashed fields.
// Canonical JSON sorts keys and fixes number and string formatting, so the
// byte stream is reproducible by any implementation that follows RFC 8785 style
// canonicalization.
type docketHashPreimage struct {
	Version        int      `json:"v"`
	RegisterID     string   `json:"register_id"`
	ID             uint64   `json:"id"`
	PreviousHash   string   `json:"previous_hash"`
	TransactionIDs []string `json:"transaction_ids"`
}

// ComputeDocketHash returns the lower-case hex SHA-256 of the canonical JSON of
// (registerID, id, previousHash, transactionIDs). Transaction order is significant.
func ComputeDocketHash(registerID string, id uint64, previousHash string, transactionIDs []string) (string, error) {
	ids := transactionIDs
	if ids == nil {
		ids = []string{}
	}
	serialized, err := canonicaljson.Marshal(docketHashPreimage{
		Version:        DocketHashVersion,
		RegisterID:     registerID,
		ID:             id,
		PreviousHash:   previousHash,
		TransactionIDs: ids,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode docket %d: %w", id, err)
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}
