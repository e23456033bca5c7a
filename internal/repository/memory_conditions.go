package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
)

// MemoryConditions is the in-process ConditionPersistence. Conditions do not survive a restart.
type MemoryConditions struct {
	mu       sync.RWMutex
	byID     map[string]models.Condition
	bySymbol map[string]map[string]struct{}
}

func NewMemoryConditions() *MemoryConditions {
	return &MemoryConditions{
		byID:     make(map[string]models.Condition),
		bySymbol: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryConditions) Get(_ context.Context, id string) (*models.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrConditionNotFound, id)
	}
	return &c, nil
}

func (m *MemoryConditions) Put(_ context.Context, c *models.Condition) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("put condition: missing id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[c.ID]; ok && old.Symbol != c.Symbol {
		m.unindexLocked(old.Symbol, c.ID)
	}
	m.byID[c.ID] = *c
	ids, ok := m.bySymbol[c.Symbol]
	if !ok {
		ids = make(map[string]struct{})
		m.bySymbol[c.Symbol] = ids
	}
	ids[c.ID] = struct{}{}
	return nil
}

func (m *MemoryConditions) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	delete(m.byID, id)
	m.unindexLocked(c.Symbol, id)
	return true, nil
}

func (m *MemoryConditions) ListBySymbol(_ context.Context, symbol string) ([]*models.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Condition, 0, len(m.bySymbol[symbol]))
	for id := range m.bySymbol[symbol] {
		c := m.byID[id]
		out = append(out, &c)
	}
	sortByCreated(out)
	return out, nil
}

func (m *MemoryConditions) ListAll(_ context.Context) ([]*models.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Condition, 0, len(m.byID))
	for _, c := range m.byID {
		c := c
		out = append(out, &c)
	}
	sortByCreated(out)
	return out, nil
}

func (m *MemoryConditions) unindexLocked(symbol, id string) {
	ids := m.bySymbol[symbol]
	delete(ids, id)
	if len(ids) == 0 {
		delete(m.bySymbol, symbol)
	}
}

func sortByCreated(cs []*models.Condition) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].CreatedAt.Before(cs[j].CreatedAt)
	})
}

var _ domrepo.ConditionPersistence = (*MemoryConditions)(nil)
