package cache

import (
	"path"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process KV safe for concurrent use. It backs the
// token and price caches when no persistent cache is configured, and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

var _ KV = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: map[string]memoryEntry{}, now: now}
}

func (m *MemoryStore) Get(key string) (Result, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Result{}, nil
	}
	age := m.now().Sub(entry.createdAt)
	if age < 0 {
		age = 0
	}
	if entry.expired(age) {
		m.mu.Lock()
		if current, ok := m.entries[key]; ok && current.createdAt.Equal(entry.createdAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return Result{}, nil
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return Result{Hit: true, Value: value, Age: age}, nil
}

func (m *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	if ttl < 0 {
		ttl = 0
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: buf, createdAt: m.now(), ttl: ttl}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Keys(pattern string) ([]string, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for key, entry := range m.entries {
		if entry.expired(now.Sub(entry.createdAt)) {
			continue
		}
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (e memoryEntry) expired(age time.Duration) bool {
	return e.ttl > 0 && age >= e.ttl
}
