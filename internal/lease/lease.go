// Package lease keeps at most one active polling loop per job across
// processes. A holder re-acquires its own lease to extend it.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker grants time-bounded ownership of a key.
type Locker interface {
	// Acquire takes the lease or extends it when this holder already owns it.
	// It reports false when another holder owns a live lease.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops the lease if this holder owns it.
	Release(ctx context.Context, key string) error
}

type entry struct {
	owner   string
	expires time.Time
}

// MemoryLocker is a process-local Locker. Leases from different MemoryLocker
// values sharing one table model separate processes in tests.
type MemoryLocker struct {
	owner string
	table *Table
	now   func() time.Time
}

// Table is the shared lease table behind MemoryLocker values.
type Table struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewTable creates an empty lease table.
func NewTable() *Table {
	return &Table{entries: make(map[string]entry)}
}

// NewMemoryLocker creates a holder backed by table. A nil table gets a
// private one.
func NewMemoryLocker(table *Table) *MemoryLocker {
	if table == nil {
		table = NewTable()
	}
	return &MemoryLocker{owner: uuid.NewString(), table: table, now: time.Now}
}

// Acquire implements Locker.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()
	now := m.now()
	cur, ok := m.table.entries[key]
	if ok && cur.owner != m.owner && now.Before(cur.expires) {
		return false, nil
	}
	m.table.entries[key] = entry{owner: m.owner, expires: now.Add(ttl)}
	return true, nil
}

// Release implements Locker.
func (m *MemoryLocker) Release(ctx context.Context, key string) error {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()
	if cur, ok := m.table.entries[key]; ok && cur.owner == m.owner {
		delete(m.table.entries, key)
	}
	return nil
}
