package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/register/internal/ledger/domain"
)

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func toRegisterEntity(r *domain.Register) *registerEntity {
	return &registerEntity{
		ID:            r.ID,
		Name:          r.Name,
		TenantID:      r.TenantID,
		Height:        r.Height,
		Status:        string(r.Status),
		Advertise:     r.Advertise,
		IsFullReplica: r.IsFullReplica,
		CreatedNanos:  nanos(r.CreatedAt),
		UpdatedNanos:  nanos(r.UpdatedAt),
	}
}

func (e *registerEntity) toDomain() *domain.Register {
	return &domain.Register{
		ID:            e.ID,
		Name:          e.Name,
		TenantID:      e.TenantID,
		Height:        e.Height,
		Status:        domain.RegisterStatus(e.Status),
		Advertise:     e.Advertise,
		IsFullReplica: e.IsFullReplica,
		CreatedAt:     fromNanos(e.CreatedNanos),
		UpdatedAt:     fromNanos(e.UpdatedNanos),
	}
}

// metadataJSON is the stored form of domain.MetaData.
type metadataJSON struct {
	RegisterID      string            `json:"register_id,omitempty"`
	TransactionType string            `json:"transaction_type,omitempty"`
	BlueprintID     string            `json:"blueprint_id,omitempty"`
	InstanceID      string            `json:"instance_id,omitempty"`
	ActionID        *int32            `json:"action_id,omitempty"`
	NextActionID    *int32            `json:"next_action_id,omitempty"`
	TrackingData    map[string]string `json:"tracking_data,omitempty"`
}

// toTransactionEntities splits tx into its row and child rows.
func toTransactionEntities(tx *domain.Transaction) (*transactionEntity, []recipientEntity, []payloadEntity, error) {
	e := &transactionEntity{
		RegisterID:     tx.RegisterID,
		TxID:           tx.TxID,
		ID:             tx.ID,
		PrevTxID:       tx.PrevTxID,
		Version:        tx.Version,
		SenderWallet:   tx.SenderWallet,
		Signature:      tx.Signature,
		TimestampNanos: nanos(tx.Timestamp),
		PayloadCount:   tx.PayloadCount,
		TxContext:      tx.Context,
		TxType:         tx.Type,
	}
	if md := tx.MetaData; md != nil {
		raw, err := json.Marshal(metadataJSON{
			RegisterID:      md.RegisterID,
			TransactionType: md.TransactionType,
			BlueprintID:     md.BlueprintID,
			InstanceID:      md.InstanceID,
			ActionID:        md.ActionID,
			NextActionID:    md.NextActionID,
			TrackingData:    md.TrackingData,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode metadata: %w", err)
		}
		s := string(raw)
		bp, inst := md.BlueprintID, md.InstanceID
		e.MetaData, e.BlueprintID, e.InstanceID = &s, &bp, &inst
	}
	if tx.BlockNumber != nil {
		block := *tx.BlockNumber
		e.BlockNumber = &block
	}

	recipients := make([]recipientEntity, len(tx.RecipientsWallets))
	for i, w := range tx.RecipientsWallets {
		recipients[i] = recipientEntity{RegisterID: tx.RegisterID, TxID: tx.TxID, Position: i, Wallet: w}
	}

	payloads := make([]payloadEntity, len(tx.Payloads))
	for i, p := range tx.Payloads {
		access := p.WalletAccess
		if access == nil {
			access = []string{}
		}
		raw, err := json.Marshal(access)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode wallet access: %w", err)
		}
		payloads[i] = payloadEntity{
			RegisterID:   tx.RegisterID,
			TxID:         tx.TxID,
			Position:     i,
			Hash:         p.Hash,
			Data:         p.Data,
			WalletAccess: string(raw),
			PayloadSize:  p.PayloadSize,
		}
	}
	return e, recipients, payloads, nil
}

func (e *transactionEntity) toDomain() (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID:           e.ID,
		TxID:         e.TxID,
		PrevTxID:     e.PrevTxID,
		RegisterID:   e.RegisterID,
		Version:      e.Version,
		SenderWallet: e.SenderWallet,
		Signature:    e.Signature,
		Timestamp:    fromNanos(e.TimestampNanos),
		PayloadCount: e.PayloadCount,
		BlockNumber:  e.BlockNumber,
		Context:      e.TxContext,
		Type:         e.TxType,
	}
	if e.MetaData != nil {
		var md metadataJSON
		if err := json.Unmarshal([]byte(*e.MetaData), &md); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", e.TxID, err)
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
	return tx, nil
}

func (e *payloadEntity) toDomain() (domain.Payload, error) {
	var access []string
	if err := json.Unmarshal([]byte(e.WalletAccess), &access); err != nil {
		return domain.Payload{}, fmt.Errorf("decode wallet access for %s: %w", e.TxID, err)
	}
	return domain.Payload{Hash: e.Hash, Data: e.Data, WalletAccess: access, PayloadSize: e.PayloadSize}, nil
}

func toDocketEntity(d *domain.Docket) (*docketEntity, error) {
	ids := d.TransactionIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode transaction ids: %w", err)
	}
	return &docketEntity{
		RegisterID:     d.RegisterID,
		ID:             d.ID,
		TransactionIDs: string(raw),
		PreviousHash:   d.PreviousHash,
		Hash:           d.Hash,
		State:          string(d.State),
		TimeStampNanos: nanos(d.TimeStamp),
	}, nil
}

func (e *docketEntity) toDomain() (*domain.Docket, error) {
	var ids []string
	if err := json.Unmarshal([]byte(e.TransactionIDs), &ids); err != nil {
		return nil, fmt.Errorf("decode transaction ids for docket %d: %w", e.ID, err)
	}
	return &domain.Docket{
		ID:             e.ID,
		RegisterID:     e.RegisterID,
		TransactionIDs: ids,
		PreviousHash:   e.PreviousHash,
		Hash:           e.Hash,
		State:          domain.DocketState(e.State),
		TimeStamp:      fromNanos(e.TimeStampNanos),
	}, nil
}
