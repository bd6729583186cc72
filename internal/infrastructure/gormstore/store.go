package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/zjrosen/register/internal/ledger/domain"
)

// Compile-time interface check.
var _ domain.Repository = (*Store)(nil)

// Store implements domain.Repository with gorm.
type Store struct {
	db *gorm.DB
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// batchSize bounds IN lists.
const batchSize = 500

func chunks[T any](items []T, fn func([]T) error) error {
	for start := 0; start < len(items); start += batchSize {
		if err := fn(items[start:min(start+batchSize, len(items))]); err != nil {
			return err
		}
	}
	return nil
}

// Registers

func (s *Store) InsertRegister(ctx context.Context, register *domain.Register) error {
	err := s.db.WithContext(ctx).Create(toRegisterEntity(register)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("register %s: %w", register.ID, domain.ErrConflict)
	}
	return err
}

func (s *Store) GetRegister(ctx context.Context, id string) (*domain.Register, error) {
	var e registerEntity
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Entity: "register", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return e.toDomain(), nil
}

func (s *Store) ListRegisters(ctx context.Context) ([]*domain.Register, error) {
	return s.findRegisters(s.db.WithContext(ctx))
}

func (s *Store) ListRegistersByTenant(ctx context.Context, tenantID string) ([]*domain.Register, error) {
	return s.findRegisters(s.db.WithContext(ctx).Where("tenant_id = ?", tenantID))
}

func (s *Store) findRegisters(query *gorm.DB) ([]*domain.Register, error) {
	var rows []registerEntity
	if err := query.Order("created_at").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*domain.Register, len(rows))
	for i := range rows {
		result[i] = rows[i].toDomain()
	}
	return result, nil
}

func (s *Store) UpdateRegister(ctx context.Context, register *domain.Register) error {
	e := toRegisterEntity(register)
	res := s.db.WithContext(ctx).Model(&registerEntity{}).Where("id = ?", e.ID).Updates(map[string]any{
		"name":            e.Name,
		"tenant_id":       e.TenantID,
		"height":          e.Height,
		"status":          e.Status,
		"advertise":       e.Advertise,
		"is_full_replica": e.IsFullReplica,
		"updated_at":      e.UpdatedNanos,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.NotFoundError{Entity: "register", Key: register.ID}
	}
	return nil
}

func (s *Store) DeleteRegister(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&registerEntity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.NotFoundError{Entity: "register", Key: id}
	}
	return nil
}

func (s *Store) CountRegisters(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&registerEntity{}).Count(&n).Error
	return int(n), err
}

// Transactions

func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	row, recipients, payloads, err := toTransactionEntities(tx)
	if err != nil {
		return err
	}
	err = doInTransaction(s.db.WithContext(ctx),
		func(db *gorm.DB) error { return db.Create(row).Error },
		func(db *gorm.DB) error {
			if len(recipients) == 0 {
				return nil
			}
			return db.Create(&recipients).Error
		},
		func(db *gorm.DB) error {
			if len(payloads) == 0 {
				return nil
			}
			return db.Create(&payloads).Error
		},
	)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("transaction %s/%s: %w", tx.RegisterID, tx.TxID, domain.ErrConflict)
	}
	return err
}

func (s *Store) GetTransaction(ctx context.Context, registerID, txID string) (*domain.Transaction, error) {
	var e transactionEntity
	err := s.db.WithContext(ctx).Where("register_id = ? AND tx_id = ?", registerID, txID).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Entity: "transaction", Key: registerID + "/" + txID}
	}
	if err != nil {
		return nil, err
	}
	txs, err := s.hydrate(ctx, registerID, []transactionEntity{e})
	if err != nil {
		return nil, err
	}
	return txs[0], nil
}

const recipientExists = `EXISTS (SELECT 1 FROM transaction_recipients r
	WHERE r.register_id = transactions.register_id AND r.tx_id = transactions.tx_id AND r.wallet = ?)`

// filtered applies filter to a fresh query over the transactions table.
func (s *Store) filtered(ctx context.Context, f domain.TransactionFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&transactionEntity{}).Where("register_id = ?", f.RegisterID)
	if f.Sender != "" {
		q = q.Where("sender_wallet = ?", f.Sender)
	}
	if f.Recipient != "" {
		q = q.Where(recipientExists, f.Recipient)
	}
	if w := f.Wallet; w != nil {
		switch {
		case w.AsSender && w.AsRecipient:
			q = q.Where("(sender_wallet = ? OR "+recipientExists+")", w.Wallet, w.Wallet)
		case w.AsSender:
			q = q.Where("sender_wallet = ?", w.Wallet)
		case w.AsRecipient:
			q = q.Where(recipientExists, w.Wallet)
		default:
			q = q.Where("1 = 0")
		}
	}
	if f.BlueprintID != "" {
		q = q.Where("blueprint_id = ?", f.BlueprintID)
	}
	if f.InstanceID != "" {
		q = q.Where("instance_id = ?", f.InstanceID)
	}
	if f.PrevTxID != nil {
		q = q.Where("prev_tx_id = ?", *f.PrevTxID)
	}
	if f.DocketID != nil {
		q = q.Where("block_number = ?", *f.DocketID)
	}
	return q
}

func (s *Store) QueryTransactions(ctx context.Context, filter domain.TransactionFilter, paging *domain.Paging) ([]*domain.Transaction, int, error) {
	var total int64
	if err := s.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := s.filtered(ctx, filter).Order("issued_at DESC").Order("tx_id ASC")
	if paging != nil {
		q = q.Offset(paging.Offset()).Limit(paging.PageSize)
	}
	var rows []transactionEntity
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	txs, err := s.hydrate(ctx, filter.RegisterID, rows)
	if err != nil {
		return nil, 0, err
	}
	return txs, int(total), nil
}

// hydrate converts rows to domain transactions and attaches their recipients
// and payloads in position order.
func (s *Store) hydrate(ctx context.Context, registerID string, rows []transactionEntity) ([]*domain.Transaction, error) {
	result := make([]*domain.Transaction, len(rows))
	byTxID := make(map[string]*domain.Transaction, len(rows))
	ids := make([]string, len(rows))
	for i := range rows {
		tx, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		result[i] = tx
		byTxID[tx.TxID] = tx
		ids[i] = tx.TxID
	}

	err := chunks(ids, func(batch []string) error {
		var recipients []recipientEntity
		if err := s.db.WithContext(ctx).
			Where("register_id = ? AND tx_id IN ?", registerID, batch).
			Order("tx_id").Order("position").
			Find(&recipients).Error; err != nil {
			return err
		}
		for _, r := range recipients {
			tx := byTxID[r.TxID]
			tx.RecipientsWallets = append(tx.RecipientsWallets, r.Wallet)
		}

		var payloads []payloadEntity
		if err := s.db.WithContext(ctx).
			Where("register_id = ? AND tx_id IN ?", registerID, batch).
			Order("tx_id").Order("position").
			Find(&payloads).Error; err != nil {
			return err
		}
		for i := range payloads {
			p, err := payloads[i].toDomain()
			if err != nil {
				return err
			}
			tx := byTxID[payloads[i].TxID]
			tx.Payloads = append(tx.Payloads, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Dockets

func docketKey(registerID string, id uint64) string {
	return registerID + "#" + strconv.FormatUint(id, 10)
}

// saveDocket inserts d or overwrites the stored row, refusing to touch a
// sealed one.
func saveDocket(db *gorm.DB, d *domain.Docket) error {
	e, err := toDocketEntity(d)
	if err != nil {
		return err
	}

	var existing docketEntity
	err = db.Where("register_id = ? AND id = ?", d.RegisterID, d.ID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(e).Error
	case err != nil:
		return err
	case existing.State == string(domain.DocketStateSealed):
		return fmt.Errorf("docket %s is sealed: %w", docketKey(d.RegisterID, d.ID), domain.ErrConflict)
	}

	return db.Model(&docketEntity{}).
		Where("register_id = ? AND id = ?", d.RegisterID, d.ID).
		Updates(map[string]any{
			"transaction_ids": e.TransactionIDs,
			"previous_hash":   e.PreviousHash,
			"hash":            e.Hash,
			"state":           e.State,
			"timestamp_nanos": e.TimeStampNanos,
		}).Error
}

func (s *Store) SaveDocket(ctx context.Context, docket *domain.Docket) error {
	return doInTransaction(s.db.WithContext(ctx), func(db *gorm.DB) error {
		return saveDocket(db, docket)
	})
}

func (s *Store) GetDocket(ctx context.Context, registerID string, id uint64) (*domain.Docket, error) {
	var e docketEntity
	err := s.db.WithContext(ctx).Where("register_id = ? AND id = ?", registerID, id).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Entity: "docket", Key: docketKey(registerID, id)}
	}
	if err != nil {
		return nil, err
	}
	return e.toDomain()
}

func (s *Store) ListDockets(ctx context.Context, registerID string) ([]*domain.Docket, error) {
	return s.findDockets(s.db.WithContext(ctx).Where("register_id = ?", registerID))
}

func (s *Store) DocketRange(ctx context.Context, registerID string, from, to uint64) ([]*domain.Docket, error) {
	if from > to {
		return []*domain.Docket{}, nil
	}
	return s.findDockets(s.db.WithContext(ctx).Where("register_id = ? AND id >= ? AND id <= ?", registerID, from, to))
}

func (s *Store) findDockets(query *gorm.DB) ([]*domain.Docket, error) {
	var rows []docketEntity
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*domain.Docket, len(rows))
	for i := range rows {
		d, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) LatestSealedDocket(ctx context.Context, registerID string) (*domain.Docket, error) {
	var e docketEntity
	err := s.db.WithContext(ctx).
		Where("register_id = ? AND state = ?", registerID, string(domain.DocketStateSealed)).
		Order("id DESC").
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Entity: "sealed docket", Key: registerID}
	}
	if err != nil {
		return nil, err
	}
	return e.toDomain()
}

// SealDocket advances the height with a compare-and-set update first, so the
// write lock is taken before anything is read.
func (s *Store) SealDocket(ctx context.Context, docket *domain.Docket, expectedHeight uint64) error {
	conflict := fmt.Errorf("register %s not at height %d for docket %d: %w",
		docket.RegisterID, expectedHeight, docket.ID, domain.ErrConflict)

	return doInTransaction(s.db.WithContext(ctx),
		func(db *gorm.DB) error {
			if docket.ID == expectedHeight+1 {
				res := db.Model(&registerEntity{}).
					Where("id = ? AND height = ?", docket.RegisterID, expectedHeight).
					Updates(map[string]any{"height": expectedHeight + 1, "updated_at": nanos(docket.TimeStamp)})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 1 {
					return nil
				}
			}
			var n int64
			if err := db.Model(&registerEntity{}).Where("id = ?", docket.RegisterID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return &domain.NotFoundError{Entity: "register", Key: docket.RegisterID}
			}
			return conflict
		},
		func(db *gorm.DB) error { return saveDocket(db, docket) },
		func(db *gorm.DB) error {
			return chunks(docket.TransactionIDs, func(batch []string) error {
				return db.Model(&transactionEntity{}).
					Where("register_id = ? AND tx_id IN ?", docket.RegisterID, batch).
					Update("block_number", docket.ID).Error
			})
		},
	)
}
