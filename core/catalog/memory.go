package catalog

import (
	"context"
	"sort"
	"sync"
)

// Memory is a process-local Catalog.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory returns an empty catalog.
func NewMemory() *Memory { return &Memory{entries: make(map[string]Entry)} }

func (m *Memory) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries[e.SHAKey] = e.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, sha string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sha]
	if !ok {
		return Entry{}, false, nil
	}
	return e.Clone(), true, nil
}

func (m *Memory) List(_ context.Context, q Query) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if q.Name != "" && e.Name != q.Name {
			continue
		}
		out = append(out, e.Clone())
	}
	m.mu.RUnlock()
	SortNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, sha string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[sha]
	delete(m.entries, sha)
	return ok, nil
}

func (m *Memory) Close() error { return nil }

// SortNewestFirst orders entries by StoredAt descending, ties broken by
// SHAKey so listings are stable.
func SortNewestFirst(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].StoredAt.Equal(es[j].StoredAt) {
			return es[i].StoredAt.After(es[j].StoredAt)
		}
		return es[i].SHAKey < es[j].SHAKey
	})
}
