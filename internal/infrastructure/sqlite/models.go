package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/register/internal/ledger/domain"
)

// registerModel mirrors the registers table. Times are Unix nanoseconds.
type registerModel struct {
	ID            string
	Name          string
	TenantID      string
	Height        int64
	Status        string
	Advertise     bool
	IsFullReplica bool
	CreatedAt     int64
	UpdatedAt     int64
}

func registerToModel(r *domain.Register) registerModel {
	return registerModel{
		ID:            r.ID,
		Name:          r.Name,
		TenantID:      r.TenantID,
		Height:        int64(r.Height), //nolint:gosec // G115: heights stay far below 2^63
		Status:        string(r.Status),
		Advertise:     r.Advertise,
		IsFullReplica: r.IsFullReplica,
		CreatedAt:     r.CreatedAt.UnixNano(),
		UpdatedAt:     r.UpdatedAt.UnixNano(),
	}
}

func (m registerModel) toDomain() *domain.Register {
	return &domain.Register{
		ID:            m.ID,
		Name:          m.Name,
		TenantID:      m.TenantID,
		Height:        uint64(m.Height), //nolint:gosec // G115: column is never negative
		Status:        domain.RegisterStatus(m.Status),
		Advertise:     m.Advertise,
		IsFullReplica: m.IsFullReplica,
		CreatedAt:     fromNanos(m.CreatedAt),
		UpdatedAt:     fromNanos(m.UpdatedAt),
	}
}

// metadataModel is the JSON shape of the transactions.metadata column.
type metadataModel struct {
	RegisterID      string            `json:"register_id,omitempty"`
	TransactionType string            `json:"transaction_type,omitempty"`
	BlueprintID     string            `json:"blueprint_id,omitempty"`
	InstanceID      string            `json:"instance_id,omitempty"`
	ActionID        *int32            `json:"action_id,omitempty"`
	NextActionID    *int32            `json:"next_action_id,omitempty"`
	TrackingData    map[string]string `json:"tracking_data,omitempty"`
}

// transactionModel mirrors the transactions table. Recipients and payloads
// live in child tables and are attached after the row is scanned.
type transactionModel struct {
	RegisterID   string
	TxID         string
	ID           string
	PrevTxID     string
	Version      int64
	SenderWallet string
	Signature    string
	Timestamp    int64
	PayloadCount int64
	MetaData     sql.NullString
	BlueprintID  sql.NullString
	InstanceID   sql.NullString
	BlockNumber  sql.NullInt64
	Context      string
	Type         string
}

func transactionToModel(tx *domain.Transaction) (transactionModel, error) {
	m := transactionModel{
		RegisterID:   tx.RegisterID,
		TxID:         tx.TxID,
		ID:           tx.ID,
		PrevTxID:     tx.PrevTxID,
		Version:      int64(tx.Version),
		SenderWallet: tx.SenderWallet,
		Signature:    tx.Signature,
		Timestamp:    tx.Timestamp.UnixNano(),
		PayloadCount: int64(tx.PayloadCount), //nolint:gosec // G115: bounded by payload slice length
		Context:      tx.Context,
		Type:         tx.Type,
	}
	if tx.MetaData != nil {
		raw, err := json.Marshal(metadataModel{
			RegisterID:      tx.MetaData.RegisterID,
			TransactionType: tx.MetaData.TransactionType,
			BlueprintID:     tx.MetaData.BlueprintID,
			InstanceID:      tx.MetaData.InstanceID,
			ActionID:        tx.MetaData.ActionID,
			NextActionID:    tx.MetaData.NextActionID,
			TrackingData:    tx.MetaData.TrackingData,
		})
		if err != nil {
			return m, fmt.Errorf("failed to encode metadata: %w", err)
		}
		m.MetaData = sql.NullString{String: string(raw), Valid: true}
		m.BlueprintID = sql.NullString{String: tx.MetaData.BlueprintID, Valid: true}
		m.InstanceID = sql.NullString{String: tx.MetaData.InstanceID, Valid: true}
	}
	if tx.BlockNumber != nil {
		m.BlockNumber = sql.NullInt64{Int64: int64(*tx.BlockNumber), Valid: true} //nolint:gosec // G115
	}
	return m, nil
}

func (m transactionModel) toDomain() (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID:           m.ID,
		TxID:         m.TxID,
		PrevTxID:     m.PrevTxID,
		RegisterID:   m.RegisterID,
		Version:      uint32(m.Version), //nolint:gosec // G115: written from a uint32
		SenderWallet: m.SenderWallet,
		Signature:    m.Signature,
		Timestamp:    fromNanos(m.Timestamp),
		PayloadCount: uint64(m.PayloadCount), //nolint:gosec // G115
		Context:      m.Context,
		Type:         m.Type,
	}
	if m.MetaData.Valid {
		var md metadataModel
		if err := json.Unmarshal([]byte(m.MetaData.String), &md); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", m.TxID, err)
		}
		tx.MetaData = &domain.MetaData{
			RegisterID:      md.RegisterID,
			TransactionType: md.TransactionType,
			BlueprintID:     md.BlueprintID,
			InstanceID:      md.InstanceID,
			ActionID:        md.ActionID,
			NextActionID:    md.NextActionID,
			TrackingData:    md.TrackingData,
		}
	}
	if m.BlockNumber.Valid {
		block := uint64(m.BlockNumber.Int64) //nolint:gosec // G115
		tx.BlockNumber = &block
	}
	return tx, nil
}

// docketModel mirrors the dockets table; transaction ids are a JSON array.
type docketModel struct {
	RegisterID     string
	ID             int64
	TransactionIDs string
	PreviousHash   string
	Hash           string
	State          string
	TimeStamp      int64
}

func docketToModel(d *domain.Docket) (docketModel, error) {
	ids := d.TransactionIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return docketModel{}, fmt.Errorf("failed to encode transaction ids: %w", err)
	}
	return docketModel{
		RegisterID:     d.RegisterID,
		ID:             int64(d.ID), //nolint:gosec // G115
		TransactionIDs: string(raw),
		PreviousHash:   d.PreviousHash,
		Hash:           d.Hash,
		State:          string(d.State),
		TimeStamp:      d.TimeStamp.UnixNano(),
	}, nil
}

func (m docketModel) toDomain() (*domain.Docket, error) {
	var ids []string
	if err := json.Unmarshal([]byte(m.TransactionIDs), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode transaction ids for docket %d: %w", m.ID, err)
	}
	return &domain.Docket{
		ID:             uint64(m.ID), //nolint:gosec // G115
		RegisterID:     m.RegisterID,
		TransactionIDs: ids,
		PreviousHash:   m.PreviousHash,
		Hash:           m.Hash,
		State:          domain.DocketState(m.State),
		TimeStamp:      fromNanos(m.TimeStamp),
	}, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func encodeWallets(wallets []string) (string, error) {
	if wallets == nil {
		wallets = []string{}
	}
	raw, err := json.Marshal(wallets)
	if err != nil {
		return "", fmt.Errorf("failed to encode wallet access: %w", err)
	}
	return string(raw), nil
}

func decodeWallets(raw string) ([]string, error) {
	var wallets []string
	if err := json.Unmarshal([]byte(raw), &wallets); err != nil {
		return nil, fmt.Errorf("failed to decode wallet access: %w", err)
	}
	return wallets, nil
}
