package groupstate

import (
	"context"
	"sync"
)

// MemoryStore keeps group states in a process-local map with per-record
// versioning. Same contract as the sqlite driver; used by tests and
// embedded deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]memRecord
}

type memRecord struct {
	st      *GroupState
	version uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]memRecord{}}
}

func (m *MemoryStore) Get(_ context.Context, groupID string) (*GroupState, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[groupID]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return rec.st.Clone(), rec.version, nil
}

func (m *MemoryStore) Create(_ context.Context, st *GroupState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[st.GroupID]; ok {
		return ErrExists
	}
	m.recs[st.GroupID] = memRecord{st: st.Clone(), version: 1}
	return nil
}

func (m *MemoryStore) Update(_ context.Context, st *GroupState, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[st.GroupID]
	if !ok {
		return ErrNotFound
	}
	if rec.version != version {
		return ErrConflict
	}
	m.recs[st.GroupID] = memRecord{st: st.Clone(), version: version + 1}
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*GroupState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*GroupState, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec.st.Clone())
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
