package cartsync

import (
	"context"
	"sort"
	"sync"

	"github.com/c0deZ3R0/go-cart-sync/entity"
)

// MemoryStore is an in-memory Store used by tests and the quickstart
// example. It honors the same contracts as the persistent backends:
// FIFO action ordering by ID, clear-then-insert replacement, and reads
// that degrade to empty.
type MemoryStore struct {
	mu         sync.RWMutex
	lists      map[string]entity.ListWithCounts
	items      map[string]entity.Item
	categories []entity.Category
	actions    map[string]PendingAction
	meta       *SyncMeta
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:   make(map[string]entity.ListWithCounts),
		items:   make(map[string]entity.Item),
		actions: make(map[string]PendingAction),
	}
}

func (s *MemoryStore) GetList(ctx context.Context, id string) (*entity.ListWithCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.lists[id]; ok {
		return &l, nil
	}
	return nil, nil
}

func (s *MemoryStore) SetList(ctx context.Context, list *entity.ListWithCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[list.ID] = *list
	return nil
}

func (s *MemoryStore) DeleteList(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, id)
	return nil
}

func (s *MemoryStore) Lists(ctx context.Context) ([]entity.ListWithCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.ListWithCounts, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ReplaceLists(ctx context.Context, lists []entity.ListWithCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = make(map[string]entity.ListWithCounts, len(lists))
	for _, l := range lists {
		s.lists[l.ID] = l
	}
	return nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if it, ok := s.items[id]; ok {
		return &it, nil
	}
	return nil, nil
}

func (s *MemoryStore) SetItem(ctx context.Context, item *entity.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *item
	return nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) ItemsByList(ctx context.Context, listID string) ([]entity.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Item
	for _, it := range s.items {
		if it.ListID == listID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ReplaceListItems(ctx context.Context, listID string, items []entity.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, it := range s.items {
		if it.ListID == listID {
			delete(s.items, id)
		}
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return nil
}

func (s *MemoryStore) Categories(ctx context.Context) ([]entity.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Category, len(s.categories))
	copy(out, s.categories)
	return out, nil
}

func (s *MemoryStore) ReplaceCategories(ctx context.Context, categories []entity.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = make([]entity.Category, len(categories))
	copy(s.categories, categories)
	return nil
}

func (s *MemoryStore) RecomputeListAggregates(ctx context.Context, listID string) error {
	items, _ := s.ItemsByList(ctx, listID)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[listID]
	if !ok {
		return nil
	}
	agg := entity.ComputeAggregates(items)
	agg.Apply(&l)
	s.lists[listID] = l
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, action *PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.ID] = *action
	return nil
}

func (s *MemoryStore) Pending(ctx context.Context) ([]PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PendingAction, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, action *PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[action.ID]; ok {
		s.actions[action.ID] = *action
	}
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, id)
	return nil
}

func (s *MemoryStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions), nil
}

func (s *MemoryStore) LoadMeta(ctx context.Context) (*SyncMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.meta == nil {
		return nil, nil
	}
	m := *s.meta
	return &m, nil
}

func (s *MemoryStore) SaveMeta(ctx context.Context, meta *SyncMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *meta
	s.meta = &m
	return nil
}

func (s *MemoryStore) Close() error { return nil }
