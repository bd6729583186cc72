// Package memory provides an in-process implementation of domain.Repository.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/zjrosen/register/internal/ledger/domain"
)

type txKey struct {
	registerID string
	txID       string
}

// Store is an in-memory domain.Repository.
// It is thread-safe using a single sync.RWMutex so SealDocket can update the
// register, docket and transactions as one unit. Entities are cloned on the way
// in and out; callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	registers map[string]*domain.Register
	txs       map[txKey]*domain.Transaction
	dockets   map[string]map[uint64]*domain.Docket
}

var _ domain.Repository = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		registers: make(map[string]*domain.Register),
		txs:       make(map[txKey]*domain.Transaction),
		dockets:   make(map[string]map[uint64]*domain.Docket),
	}
}

// ===========================================================================
// Registers
// ===========================================================================

func (s *Store) InsertRegister(_ context.Context, register *domain.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registers[register.ID]; ok {
		return domain.ErrConflict
	}
	s.registers[register.ID] = register.Clone()
	return nil
}

func (s *Store) GetRegister(_ context.Context, id string) (*domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.registers[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "register", Key: id}
	}
	return r.Clone(), nil
}

func (s *Store) ListRegisters(_ context.Context) ([]*domain.Register, error) {
	return s.listRegisters(func(*domain.Register) bool { return true }), nil
}

func (s *Store) ListRegistersByTenant(_ context.Context, tenantID string) ([]*domain.Register, error) {
	return s.listRegisters(func(r *domain.Register) bool { return r.TenantID == tenantID }), nil
}

func (s *Store) listRegisters(keep func(*domain.Register) bool) []*domain.Register {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Register, 0, len(s.registers))
	for _, r := range s.registers {
		if keep(r) {
			result = append(result, r.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *domain.Register) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) UpdateRegister(_ context.Context, register *domain.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registers[register.ID]; !ok {
		return &domain.NotFoundError{Entity: "register", Key: register.ID}
	}
	s.registers[register.ID] = register.Clone()
	return nil
}

func (s *Store) DeleteRegister(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registers[id]; !ok {
		return &domain.NotFoundError{Entity: "register", Key: id}
	}
	delete(s.registers, id)
	return nil
}

func (s *Store) CountRegisters(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registers), nil
}

// ===========================================================================
// Transactions
// ===========================================================================

func (s *Store) InsertTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := txKey{registerID: tx.RegisterID, txID: tx.TxID}
	if _, ok := s.txs[key]; ok {
		return domain.ErrConflict
	}
	s.txs[key] = tx.Clone()
	return nil
}

func (s *Store) GetTransaction(_ context.Context, registerID, txID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[txKey{registerID: registerID, txID: txID}]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "transaction", Key: registerID + "/" + txID}
	}
	return tx.Clone(), nil
}

func (s *Store) QueryTransactions(_ context.Context, filter domain.TransactionFilter, paging *domain.Paging) ([]*domain.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Transaction, 0)
	for _, tx := range s.txs {
		if filter.Matches(tx) {
			matched = append(matched, tx)
		}
	}

	// stored transactions are mutated by SealDocket; clone before unlocking
	slices.SortFunc(matched, domain.CompareTransactions)
	total := len(matched)

	if paging != nil {
		start := min(paging.Offset(), total)
		end := min(start+paging.PageSize, total)
		matched = matched[start:end]
	}

	result := make([]*domain.Transaction, len(matched))
	for i, tx := range matched {
		result[i] = tx.Clone()
	}
	return result, total, nil
}

// ===========================================================================
// Dockets
// ===========================================================================

func docketKey(registerID string, id uint64) string {
	return registerID + "#" + strconv.FormatUint(id, 10)
}

func (s *Store) SaveDocket(_ context.Context, docket *domain.Docket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.dockets[docket.RegisterID][docket.ID]; ok && existing.State == domain.DocketStateSealed {
		return domain.ErrConflict
	}
	s.putDocket(docket)
	return nil
}

func (s *Store) putDocket(docket *domain.Docket) {
	byID, ok := s.dockets[docket.RegisterID]
	if !ok {
		byID = make(map[uint64]*domain.Docket)
		s.dockets[docket.RegisterID] = byID
	}
	byID[docket.ID] = docket.Clone()
}

func (s *Store) GetDocket(_ context.Context, registerID string, id uint64) (*domain.Docket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dockets[registerID][id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "docket", Key: docketKey(registerID, id)}
	}
	return d.Clone(), nil
}

func (s *Store) ListDockets(_ context.Context, registerID string) ([]*domain.Docket, error) {
	return s.collectDockets(registerID, func(*domain.Docket) bool { return true }), nil
}

func (s *Store) DocketRange(_ context.Context, registerID string, from, to uint64) ([]*domain.Docket, error) {
	return s.collectDockets(registerID, func(d *domain.Docket) bool { return d.ID >= from && d.ID <= to }), nil
}

func (s *Store) collectDockets(registerID string, keep func(*domain.Docket) bool) []*domain.Docket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Docket, 0)
	for _, d := range s.dockets[registerID] {
		if keep(d) {
			result = append(result, d.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *domain.Docket) int { return cmp.Compare(a.ID, b.ID) })
	return result
}

func (s *Store) LatestSealedDocket(_ context.Context, registerID string) (*domain.Docket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Docket
	for _, d := range s.dockets[registerID] {
		if d.State == domain.DocketStateSealed && (latest == nil || d.ID > latest.ID) {
			latest = d
		}
	}
	if latest == nil {
		return nil, &domain.NotFoundError{Entity: "sealed docket", Key: registerID}
	}
	return latest.Clone(), nil
}

func (s *Store) SealDocket(_ context.Context, docket *domain.Docket, expectedHeight uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registers[docket.RegisterID]
	if !ok {
		return &domain.NotFoundError{Entity: "register", Key: docket.RegisterID}
	}
	if reg.Height != expectedHeight || docket.ID != expectedHeight+1 {
		return domain.ErrConflict
	}
	if existing, ok := s.dockets[docket.RegisterID][docket.ID]; ok && existing.State == domain.DocketStateSealed {
		return domain.ErrConflict
	}

	s.putDocket(docket)
	reg.Height = expectedHeight + 1
	reg.UpdatedAt = docket.TimeStamp

	for _, txID := range docket.TransactionIDs {
		if tx, ok := s.txs[txKey{registerID: docket.RegisterID, txID: txID}]; ok {
			block := docket.ID
			tx.BlockNumber = &block
		}
	}
	return nil
}
