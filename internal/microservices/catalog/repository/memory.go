package repository

import (
	"context"
	"sort"
	"sync"

	"fulfillment-tracker/internal/domain"
)

// MemoryRepository backs the catalog in memory mode.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[string]Entry{}}
}

func (m *MemoryRepository) List(_ context.Context, kind domain.Craft) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, e := range m.rows {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryRepository) Get(_ context.Context, kind domain.Craft, id string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rows[id]
	if !ok || e.Kind != kind {
		return Entry{}, domain.NotFound("catalog "+string(kind), id)
	}
	return e, nil
}

func (m *MemoryRepository) FindByCode(_ context.Context, kind domain.Craft, code string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.byCode(kind, code); ok {
		return e, nil
	}
	return Entry{}, domain.NotFound("catalog "+string(kind)+" code", code)
}

func (m *MemoryRepository) byCode(kind domain.Craft, code string) (Entry, bool) {
	for _, e := range m.rows {
		if e.Kind == kind && e.Code == code {
			return e, true
		}
	}
	return Entry{}, false
}

func (m *MemoryRepository) Upsert(_ context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byCode(e.Kind, e.Code); ok {
		cur.Name, cur.WeightGrams, cur.NeckSize, cur.UpdatedAt = e.Name, e.WeightGrams, e.NeckSize, e.UpdatedAt
		m.rows[cur.ID] = cur
		return cur, nil
	}
	m.rows[e.ID] = e
	return e, nil
}

func (m *MemoryRepository) Update(_ context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[e.ID]
	if !ok || cur.Kind != e.Kind {
		return Entry{}, domain.NotFound("catalog "+string(e.Kind), e.ID)
	}
	if other, ok := m.byCode(e.Kind, e.Code); ok && other.ID != e.ID {
		return Entry{}, &domain.ConflictError{Reason: "catalog code " + e.Code + " already exists"}
	}
	cur.Code, cur.Name, cur.WeightGrams, cur.NeckSize, cur.UpdatedAt = e.Code, e.Name, e.WeightGrams, e.NeckSize, e.UpdatedAt
	m.rows[cur.ID] = cur
	return cur, nil
}

func (m *MemoryRepository) Delete(_ context.Context, kind domain.Craft, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rows[id]; !ok || e.Kind != kind {
		return domain.NotFound("catalog "+string(kind), id)
	}
	delete(m.rows, id)
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
