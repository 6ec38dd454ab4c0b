package cache

import (
	"context"
	"sync"
	"time"

	"github.com/gotomicro/ekit/bean/option"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process local store holding at most maxEntries keys.
// Expired entries are dropped when read, by Sweep, and by a Set that finds
// the store full. When nothing has expired that Set evicts the entry closest
// to expiring.
type MemoryStore struct {
	mutex      sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	val []byte
	// zero means no expiration
	expireAt time.Time
}

func MemoryStoreWithMaxEntries(n int) option.Option[MemoryStore] {
	return func(m *MemoryStore) {
		m.maxEntries = n
	}
}

func NewMemoryStore(opts ...option.Option[MemoryStore]) *MemoryStore {
	m := &MemoryStore{
		entries:    make(map[string]memoryEntry, 64),
		maxEntries: 10000,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	entry, ok := m.entries[key]
	m.mutex.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expireAt.IsZero() && !m.now().Before(entry.expireAt) {
		m.mutex.Lock()
		// double check, a Set may have refreshed it
		if e, has := m.entries[key]; has && e.expireAt.Equal(entry.expireAt) {
			delete(m.entries, key)
		}
		m.mutex.Unlock()
		return nil, false, nil
	}
	return entry.val, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, val []byte, expiration time.Duration) error {
	entry := memoryEntry{val: val}
	if expiration > 0 {
		entry.expireAt = m.now().Add(expiration)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.entries[key]; !ok && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.makeRoom()
	}
	m.entries[key] = entry
	return nil
}

// makeRoom drops expired entries, or the one expiring first when none has.
func (m *MemoryStore) makeRoom() {
	if m.sweep(m.now()) > 0 {
		return
	}
	var (
		victim string
		first  time.Time
		found  bool
	)
	for key, entry := range m.entries {
		if !found || expiresBefore(entry.expireAt, first) {
			victim, first, found = key, entry.expireAt, true
		}
	}
	if found {
		delete(m.entries, victim)
	}
}

// expiresBefore orders expirations with the zero time, never, last.
func expiresBefore(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	return b.IsZero() || a.Before(b)
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	delete(m.entries, key)
	m.mutex.Unlock()
	return nil
}

// Sweep removes every expired entry.
func (m *MemoryStore) Sweep() {
	now := m.now()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sweep(now)
}

func (m *MemoryStore) sweep(now time.Time) int {
	removed := 0
	for key, entry := range m.entries {
		if !entry.expireAt.IsZero() && !now.Before(entry.expireAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.entries)
}
