package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBackend is the in-memory Backend used by tests and ephemeral runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[Kind]map[string][]byte
	order   map[Kind][]string
	indexes map[string][]string // kind/index/key → ids
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[Kind]map[string][]byte),
		order:   make(map[Kind][]string),
		indexes: make(map[string][]string),
	}
}

func indexKey(kind Kind, index, key string) string {
	return string(kind) + "/" + index + "/" + key
}

func (m *MemoryBackend) Put(ctx context.Context, kind Kind, id string, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[kind] == nil {
		m.records[kind] = make(map[string][]byte)
	}
	if _, exists := m.records[kind][id]; exists {
		return nil
	}
	cp := make([]byte, len(record))
	copy(cp, record)
	m.records[kind][id] = cp
	m.order[kind] = append(m.order[kind], id)
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, kind Kind, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(rec))
	copy(cp, rec)
	return cp, nil
}

func (m *MemoryBackend) Iter(ctx context.Context, kind Kind) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]byte, 0, len(m.order[kind]))
	for _, id := range m.order[kind] {
		if rec, ok := m.records[kind][id]; ok {
			cp := make([]byte, len(rec))
			copy(cp, rec)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *MemoryBackend) DeleteByAgent(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for kind, recs := range m.records {
		for id, raw := range recs {
			if recordMentionsAgent(raw, agentID) {
				delete(recs, id)
				m.removeFromOrder(kind, id)
				m.removeFromIndexes(kind, id)
			}
		}
	}
	return nil
}

func (m *MemoryBackend) removeFromOrder(kind Kind, id string) {
	ids := m.order[kind]
	for i, v := range ids {
		if v == id {
			m.order[kind] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func (m *MemoryBackend) removeFromIndexes(kind Kind, id string) {
	for k, ids := range m.indexes {
		filtered := ids[:0]
		for _, v := range ids {
			if v != id {
				filtered = append(filtered, v)
			}
		}
		m.indexes[k] = filtered
	}
}

func (m *MemoryBackend) IndexAdd(ctx context.Context, kind Kind, index, key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := indexKey(kind, index, key)
	for _, existing := range m.indexes[k] {
		if existing == id {
			return nil
		}
	}
	m.indexes[k] = append(m.indexes[k], id)
	return nil
}

func (m *MemoryBackend) IndexLookup(ctx context.Context, kind Kind, index, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.indexes[indexKey(kind, index, key)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }

// recordMentionsAgent checks the known agent-bearing fields of a raw record.
func recordMentionsAgent(raw []byte, agentID string) bool {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	for _, f := range agentFields {
		if v, ok := fields[f].(string); ok && v == agentID {
			return true
		}
	}
	return false
}
