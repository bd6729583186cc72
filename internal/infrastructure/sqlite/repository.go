package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ncruces/go-sqlite3"

	"github.com/zjrosen/register/internal/ledger/domain"
)

// Compile-time interface check.
var _ domain.Repository = (*Repository)(nil)

// Repository implements domain.Repository with raw SQL.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an already migrated connection.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func isConstraintViolation(err error) bool {
	return errors.Is(err, sqlite3.CONSTRAINT)
}

// ===========================================================================
// Registers
// ===========================================================================

const registerColumns = `id, name, tenant_id, height, status, advertise, is_full_replica, created_at, updated_at`

func scanRegister(s scanner) (*domain.Register, error) {
	var m registerModel
	if err := s.Scan(&m.ID, &m.Name, &m.TenantID, &m.Height, &m.Status,
		&m.Advertise, &m.IsFullReplica, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *Repository) InsertRegister(ctx context.Context, register *domain.Register) error {
	m := registerToModel(register)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO registers (`+registerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.TenantID, m.Height, m.Status, m.Advertise, m.IsFullReplica, m.CreatedAt, m.UpdatedAt)
	if isConstraintViolation(err) {
		return fmt.Errorf("register %s: %w", register.ID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert register: %w", err)
	}
	return nil
}

func (r *Repository) GetRegister(ctx context.Context, id string) (*domain.Register, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registerColumns+` FROM registers WHERE id = ?`, id)
	reg, err := scanRegister(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "register", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get register: %w", err)
	}
	return reg, nil
}

func (r *Repository) ListRegisters(ctx context.Context) ([]*domain.Register, error) {
	return r.queryRegisters(ctx, `SELECT `+registerColumns+` FROM registers ORDER BY created_at, id`)
}

func (r *Repository) ListRegistersByTenant(ctx context.Context, tenantID string) ([]*domain.Register, error) {
	return r.queryRegisters(ctx,
		`SELECT `+registerColumns+` FROM registers WHERE tenant_id = ? ORDER BY created_at, id`, tenantID)
}

func (r *Repository) queryRegisters(ctx context.Context, query string, args ...any) ([]*domain.Register, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*domain.Register, 0)
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan register: %w", err)
		}
		result = append(result, reg)
	}
	return result, rows.Err()
}

func (r *Repository) UpdateRegister(ctx context.Context, register *domain.Register) error {
	m := registerToModel(register)
	res, err := r.db.ExecContext(ctx, `
		UPDATE registers
		SET name = ?, tenant_id = ?, height = ?, status = ?, advertise = ?, is_full_replica = ?, updated_at = ?
		WHERE id = ?`,
		m.Name, m.TenantID, m.Height, m.Status, m.Advertise, m.IsFullReplica, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update register: %w", err)
	}
	return requireAffected(res, &domain.NotFoundError{Entity: "register", Key: register.ID})
}

func (r *Repository) DeleteRegister(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete register: %w", err)
	}
	return requireAffected(res, &domain.NotFoundError{Entity: "register", Key: id})
}

func (r *Repository) CountRegisters(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count registers: %w", err)
	}
	return n, nil
}

// requireAffected returns notFound when the statement touched no rows.
func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// ===========================================================================
// Transactions
// ===========================================================================

const transactionColumns = `t.register_id, t.tx_id, t.id, t.prev_tx_id, t.version, t.sender_wallet, t.signature,
	t.timestamp, t.payload_count, t.metadata, t.blueprint_id, t.instance_id, t.block_number, t.context, t.type`

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var m transactionModel
	if err := s.Scan(&m.RegisterID, &m.TxID, &m.ID, &m.PrevTxID, &m.Version, &m.SenderWallet, &m.Signature,
		&m.Timestamp, &m.PayloadCount, &m.MetaData, &m.BlueprintID, &m.InstanceID, &m.BlockNumber,
		&m.Context, &m.Type); err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (r *Repository) InsertTransaction(ctx context.Context, tx *domain.Transaction) (err error) {
	m, err := transactionToModel(tx)
	if err != nil {
		return err
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO transactions (register_id, tx_id, id, prev_tx_id, version, sender_wallet, signature,
			timestamp, payload_count, metadata, blueprint_id, instance_id, block_number, context, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RegisterID, m.TxID, m.ID, m.PrevTxID, m.Version, m.SenderWallet, m.Signature,
		m.Timestamp, m.PayloadCount, m.MetaData, m.BlueprintID, m.InstanceID, m.BlockNumber, m.Context, m.Type)
	if isConstraintViolation(err) {
		return fmt.Errorf("transaction %s/%s: %w", tx.RegisterID, tx.TxID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for i, wallet := range tx.RecipientsWallets {
		if _, err = sqlTx.ExecContext(ctx,
			`INSERT INTO transaction_recipients (register_id, tx_id, position, wallet) VALUES (?, ?, ?, ?)`,
			tx.RegisterID, tx.TxID, i, wallet); err != nil {
			return fmt.Errorf("failed to insert recipient: %w", err)
		}
	}

	for i, p := range tx.Payloads {
		var access string
		if access, err = encodeWallets(p.WalletAccess); err != nil {
			return err
		}
		if _, err = sqlTx.ExecContext(ctx, `
			INSERT INTO transaction_payloads (register_id, tx_id, position, hash, data, wallet_access, payload_size)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tx.RegisterID, tx.TxID, i, p.Hash, p.Data, access, int64(p.PayloadSize)); err != nil { //nolint:gosec // G115
			return fmt.Errorf("failed to insert payload: %w", err)
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, registerID, txID string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.register_id = ? AND t.tx_id = ?`, registerID, txID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "transaction", Key: registerID + "/" + txID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if err := r.attachChildren(ctx, registerID, []*domain.Transaction{tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

// whereClause renders filter as a SQL condition over the transactions alias t.
func whereClause(filter domain.TransactionFilter) (string, []any) {
	conds := []string{"t.register_id = ?"}
	args := []any{filter.RegisterID}

	recipientExists := `EXISTS (SELECT 1 FROM transaction_recipients r
		WHERE r.register_id = t.register_id AND r.tx_id = t.tx_id AND r.wallet = ?)`

	if filter.Sender != "" {
		conds = append(conds, "t.sender_wallet = ?")
		args = append(args, filter.Sender)
	}
	if filter.Recipient != "" {
		conds = append(conds, recipientExists)
		args = append(args, filter.Recipient)
	}
	if w := filter.Wallet; w != nil {
		var parts []string
		if w.AsSender {
			parts = append(parts, "t.sender_wallet = ?")
			args = append(args, w.Wallet)
		}
		if w.AsRecipient {
			parts = append(parts, recipientExists)
			args = append(args, w.Wallet)
		}
		if len(parts) == 0 {
			parts = append(parts, "0")
		}
		conds = append(conds, "("+strings.Join(parts, " OR ")+")")
	}
	if filter.BlueprintID != "" {
		conds = append(conds, "t.blueprint_id = ?")
		args = append(args, filter.BlueprintID)
	}
	if filter.InstanceID != "" {
		conds = append(conds, "t.instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.PrevTxID != nil {
		conds = append(conds, "t.prev_tx_id = ?")
		args = append(args, *filter.PrevTxID)
	}
	if filter.DocketID != nil {
		conds = append(conds, "t.block_number = ?")
		args = append(args, int64(*filter.DocketID)) //nolint:gosec // G115
	}
	return strings.Join(conds, " AND "), args
}

func (r *Repository) QueryTransactions(ctx context.Context, filter domain.TransactionFilter, paging *domain.Paging) ([]*domain.Transaction, int, error) {
	where, args := whereClause(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions t WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE ` + where + ` ORDER BY t.timestamp DESC, t.tx_id ASC`
	if paging != nil {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, paging.PageSize, paging.Offset())
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to close rows: %w", err)
	}

	if err := r.attachChildren(ctx, filter.RegisterID, result); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// childBatchSize bounds the IN list so large scans stay under SQLite's
// host parameter limit.
const childBatchSize = 500

// attachChildren loads recipients and payloads for txs, which all belong to registerID.
func (r *Repository) attachChildren(ctx context.Context, registerID string, txs []*domain.Transaction) error {
	for start := 0; start < len(txs); start += childBatchSize {
		end := min(start+childBatchSize, len(txs))
		if err := r.attachBatch(ctx, registerID, txs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) attachBatch(ctx context.Context, registerID string, txs []*domain.Transaction) error {
	byTxID := make(map[string]*domain.Transaction, len(txs))
	args := []any{registerID}
	for _, tx := range txs {
		byTxID[tx.TxID] = tx
		args = append(args, tx.TxID)
	}
	in := "(" + strings.TrimSuffix(strings.Repeat("?,", len(txs)), ",") + ")"

	rows, err := r.db.QueryContext(ctx, `
		SELECT tx_id, wallet FROM transaction_recipients
		WHERE register_id = ? AND tx_id IN `+in+` ORDER BY tx_id, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to load recipients: %w", err)
	}
	for rows.Next() {
		var txID, wallet string
		if err := rows.Scan(&txID, &wallet); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan recipient: %w", err)
		}
		tx := byTxID[txID]
		tx.RecipientsWallets = append(tx.RecipientsWallets, wallet)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("failed to close recipient rows: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT tx_id, hash, data, wallet_access, payload_size FROM transaction_payloads
		WHERE register_id = ? AND tx_id IN `+in+` ORDER BY tx_id, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to load payloads: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			txID, access string
			size         int64
			p            domain.Payload
		)
		if err := rows.Scan(&txID, &p.Hash, &p.Data, &access, &size); err != nil {
			return fmt.Errorf("failed to scan payload: %w", err)
		}
		if p.WalletAccess, err = decodeWallets(access); err != nil {
			return err
		}
		p.PayloadSize = uint64(size) //nolint:gosec // G115
		tx := byTxID[txID]
		tx.Payloads = append(tx.Payloads, p)
	}
	return rows.Err()
}

// ===========================================================================
// Dockets
// ===========================================================================

const docketColumns = `register_id, id, transaction_ids, previous_hash, hash, state, timestamp`

func scanDocket(s scanner) (*domain.Docket, error) {
	var m docketModel
	if err := s.Scan(&m.RegisterID, &m.ID, &m.TransactionIDs, &m.PreviousHash, &m.Hash, &m.State, &m.TimeStamp); err != nil {
		return nil, err
	}
	return m.toDomain()
}

func docketKey(registerID string, id uint64) string {
	return registerID + "#" + strconv.FormatUint(id, 10)
}

// upsertDocket writes d unless the stored row is sealed, in which case it
// reports ErrConflict.
func upsertDocket(ctx context.Context, exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, d *domain.Docket) error {
	m, err := docketToModel(d)
	if err != nil {
		return err
	}
	res, err := exec.ExecContext(ctx, `
		INSERT INTO dockets (`+docketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (register_id, id) DO UPDATE SET
			transaction_ids = excluded.transaction_ids,
			previous_hash = excluded.previous_hash,
			hash = excluded.hash,
			state = excluded.state,
			timestamp = excluded.timestamp
		WHERE dockets.state <> 'sealed'`,
		m.RegisterID, m.ID, m.TransactionIDs, m.PreviousHash, m.Hash, m.State, m.TimeStamp)
	if err != nil {
		return fmt.Errorf("failed to save docket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("docket %s is sealed: %w", docketKey(d.RegisterID, d.ID), domain.ErrConflict)
	}
	return nil
}

func (r *Repository) SaveDocket(ctx context.Context, docket *domain.Docket) error {
	return upsertDocket(ctx, r.db, docket)
}

func (r *Repository) GetDocket(ctx context.Context, registerID string, id uint64) (*domain.Docket, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+docketColumns+` FROM dockets WHERE register_id = ? AND id = ?`, registerID, int64(id)) //nolint:gosec // G115
	d, err := scanDocket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "docket", Key: docketKey(registerID, id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get docket: %w", err)
	}
	return d, nil
}

func (r *Repository) ListDockets(ctx context.Context, registerID string) ([]*domain.Docket, error) {
	return r.queryDockets(ctx, `SELECT `+docketColumns+` FROM dockets WHERE register_id = ? ORDER BY id`, registerID)
}

func (r *Repository) DocketRange(ctx context.Context, registerID string, from, to uint64) ([]*domain.Docket, error) {
	if from > to {
		return []*domain.Docket{}, nil
	}
	return r.queryDockets(ctx,
		`SELECT `+docketColumns+` FROM dockets WHERE register_id = ? AND id BETWEEN ? AND ? ORDER BY id`,
		registerID, clampInt64(from), clampInt64(to))
}

// clampInt64 maps ids beyond the signed range onto the largest storable id.
func clampInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}

func (r *Repository) queryDockets(ctx context.Context, query string, args ...any) ([]*domain.Docket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dockets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*domain.Docket, 0)
	for rows.Next() {
		d, err := scanDocket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan docket: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *Repository) LatestSealedDocket(ctx context.Context, registerID string) (*domain.Docket, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+docketColumns+` FROM dockets
		WHERE register_id = ? AND state = ? ORDER BY id DESC LIMIT 1`,
		registerID, string(domain.DocketStateSealed))
	d, err := scanDocket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "sealed docket", Key: registerID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sealed docket: %w", err)
	}
	return d, nil
}

// SealDocket runs inside a write-locked transaction: the height check, the
// docket write, the height bump and the block number stamping commit together.
func (r *Repository) SealDocket(ctx context.Context, docket *domain.Docket, expectedHeight uint64) (err error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seal: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	var height int64
	err = sqlTx.QueryRowContext(ctx, `SELECT height FROM registers WHERE id = ?`, docket.RegisterID).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: "register", Key: docket.RegisterID}
	}
	if err != nil {
		return fmt.Errorf("failed to read register height: %w", err)
	}
	if uint64(height) != expectedHeight || docket.ID != expectedHeight+1 { //nolint:gosec // G115
		return fmt.Errorf("register %s at height %d, sealing docket %d: %w",
			docket.RegisterID, height, docket.ID, domain.ErrConflict)
	}

	if err = upsertDocket(ctx, sqlTx, docket); err != nil {
		return err
	}

	ts := docket.TimeStamp.UnixNano()
	if _, err = sqlTx.ExecContext(ctx,
		`UPDATE registers SET height = ?, updated_at = ? WHERE id = ?`,
		clampInt64(expectedHeight+1), ts, docket.RegisterID); err != nil {
		return fmt.Errorf("failed to advance register height: %w", err)
	}

	for _, txID := range docket.TransactionIDs {
		if _, err = sqlTx.ExecContext(ctx,
			`UPDATE transactions SET block_number = ? WHERE register_id = ? AND tx_id = ?`,
			clampInt64(docket.ID), docket.RegisterID, txID); err != nil {
			return fmt.Errorf("failed to stamp block number: %w", err)
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seal: %w", err)
	}
	return nil
}
