package application

import "sync"

// registerLocks hands out one mutex per register id. Entries are dropped
// once no goroutine holds or waits on them.
type registerLocks struct {
	mu    sync.Mutex
	locks map[string]*registerLock
}

type registerLock struct {
	mu   sync.Mutex
	refs int
}

func newRegisterLocks() *registerLocks {
	return &registerLocks{locks: make(map[string]*registerLock)}
}

// lock blocks until the register's mutex is held and returns its release func.
func (l *registerLocks) lock(registerID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[registerID]
	if !ok {
		entry = &registerLock{}
		l.locks[registerID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, registerID)
		}
		l.mu.Unlock()
	}
}

func (l *registerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// RegisterLocks is a per-register lock table that can be shared between
// managers via WithSharedLocks.
type RegisterLocks struct {
	locks *registerLocks
}

// NewRegisterLocks creates an empty lock table.
func NewRegisterLocks() *RegisterLocks {
	return &RegisterLocks{locks: newRegisterLocks()}
}
