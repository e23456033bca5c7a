package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/pkg/logger"

	"github.com/google/uuid"
)

// ConditionStore is the registry of alert conditions, indexed by id and by symbol.
// Writes go to persistence first; the in-memory index only changes after they succeed.
type ConditionStore struct {
	persist domrepo.ConditionPersistence
	log     *logger.Logger
	newID   func() string
	now     func() time.Time

	mu       sync.RWMutex
	byID     map[string]*models.Condition
	bySymbol map[string][]string
	order    []string
}

type StoreOption func(*ConditionStore)

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *ConditionStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithStoreClock replaces time.Now for CreatedAt.
func WithStoreClock(fn func() time.Time) StoreOption {
	return func(s *ConditionStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewConditionStore(persist domrepo.ConditionPersistence, log *logger.Logger, opts ...StoreOption) *ConditionStore {
	s := &ConditionStore{
		persist:  persist,
		log:      log,
		newID:    func() string { return uuid.NewString() },
		now:      func() time.Time { return time.Now().UTC() },
		byID:     make(map[string]*models.Condition),
		bySymbol: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load rebuilds the index from persistence. Order is by CreatedAt since backends do not keep insertion order.
func (s *ConditionStore) Load(ctx context.Context) error {
	all, err := s.persist.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load conditions: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*models.Condition, len(all))
	s.bySymbol = make(map[string][]string)
	s.order = s.order[:0]
	for _, c := range all {
		s.indexLocked(c)
	}
	s.log.Info("conditions loaded", logger.Int("count", len(all)), logger.Int("symbols", len(s.bySymbol)))
	return nil
}

// Create validates input, persists a new condition and indexes it under its symbol.
func (s *ConditionStore) Create(ctx context.Context, in models.CreateConditionInput) (*models.Condition, error) {
	symbol, err := models.NormalizeSymbol(in.Symbol)
	if err != nil {
		return nil, err
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidKind, in.Kind)
	}
	if err := models.ValidateThreshold(in.Threshold); err != nil {
		return nil, err
	}

	c := &models.Condition{
		ID:          s.newID(),
		Owner:       strings.TrimSpace(in.Owner),
		Symbol:      symbol,
		Kind:        in.Kind,
		Threshold:   in.Threshold,
		Description: strings.TrimSpace(in.Description),
		OneShot:     in.OneShot,
		CreatedAt:   s.now(),
	}
	if err := s.persist.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("persist condition: %w", err)
	}

	s.mu.Lock()
	s.indexLocked(c)
	s.mu.Unlock()

	out := *c
	return &out, nil
}

// Delete removes a condition. It reports false for an unknown id.
func (s *ConditionStore) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := s.persist.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete condition %s: %w", id, err)
	}

	s.mu.Lock()
	indexed := s.unindexLocked(id)
	s.mu.Unlock()

	return removed || indexed, nil
}

// List returns conditions in insertion order. An empty owner returns all of them.
func (s *ConditionStore) List(owner string) []models.Condition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Condition, 0, len(s.order))
	for _, id := range s.order {
		c := s.byID[id]
		if owner != "" && c.Owner != owner {
			continue
		}
		out = append(out, *c)
	}
	return out
}

func (s *ConditionStore) Get(id string) (models.Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return models.Condition{}, fmt.Errorf("%w: %s", models.ErrConditionNotFound, id)
	}
	return *c, nil
}

// ForSymbol returns a snapshot of the conditions on symbol. Later deletes do not affect it.
func (s *ConditionStore) ForSymbol(symbol string) []models.Condition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySymbol[symbol]
	out := make([]models.Condition, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.byID[id])
	}
	return out
}

func (s *ConditionStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// HasConditions reports whether symbol has at least one live condition.
func (s *ConditionStore) HasConditions(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySymbol[symbol]) > 0
}

// SymbolsWithConditions returns the sorted set of symbols with at least one condition.
func (s *ConditionStore) SymbolsWithConditions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bySymbol))
	for sym := range s.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *ConditionStore) Stats() models.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	by := make(map[string]int, len(s.bySymbol))
	for sym, ids := range s.bySymbol {
		by[sym] = len(ids)
	}
	return models.StoreStats{Total: len(s.byID), BySymbol: by}
}

func (s *ConditionStore) indexLocked(c *models.Condition) {
	if _, dup := s.byID[c.ID]; dup {
		return
	}
	s.byID[c.ID] = c
	s.bySymbol[c.Symbol] = append(s.bySymbol[c.Symbol], c.ID)
	s.order = append(s.order, c.ID)
}

func (s *ConditionStore) unindexLocked(id string) bool {
	c, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)

	ids := removeID(s.bySymbol[c.Symbol], id)
	if len(ids) == 0 {
		delete(s.bySymbol, c.Symbol)
	} else {
		s.bySymbol[c.Symbol] = ids
	}
	s.order = removeID(s.order, id)
	return true
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
