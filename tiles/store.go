package tiles

import "sync"

// Store is the small key-value persistence surface the cache writes session
// records through. Durable storage is a cache, not a source of truth: it only
// pre-populates the in-memory slot across restarts.
type Store interface {
	Get(key string) (*SessionRecord, bool, error)
	Set(key string, record *SessionRecord) error
}

// MemoryStore is an in-memory Store for tests and deployments that do not
// need the session to survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]SessionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]SessionRecord)}
}

func (m *MemoryStore) Get(key string) (*SessionRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return &record, true, nil
}

func (m *MemoryStore) Set(key string, record *SessionRecord) error {
	m.mu.Lock()
	m.data[key] = *record
	m.mu.Unlock()
	return nil
}
