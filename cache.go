package cartsync

import (
	"sync"

	"github.com/c0deZ3R0/go-cart-sync/entity"
)

// Cache is the in-memory query cache the UI renders from. The reconciler
// patches it optimistically before any I/O and replaces whole collections
// after authoritative fetches. All accessors return copies.
type Cache struct {
	mu         sync.RWMutex
	lists      []entity.ListWithCounts
	items      map[string][]entity.Item
	categories []entity.Category
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string][]entity.Item)}
}

// Lists returns a copy of the cached list collection.
func (c *Cache) Lists() []entity.ListWithCounts {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]entity.ListWithCounts, len(c.lists))
	copy(out, c.lists)
	return out
}

// SetLists replaces the cached list collection.
func (c *Cache) SetLists(lists []entity.ListWithCounts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists = make([]entity.ListWithCounts, len(lists))
	copy(c.lists, lists)
}

// Items returns a copy of the cached items of one list.
func (c *Cache) Items(listID string) []entity.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := c.items[listID]
	out := make([]entity.Item, len(items))
	copy(out, items)
	return out
}

// SetItems replaces the cached items of one list.
func (c *Cache) SetItems(listID string, items []entity.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]entity.Item, len(items))
	copy(cp, items)
	c.items[listID] = cp
}

// DropItems forgets the cached items of one list.
func (c *Cache) DropItems(listID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, listID)
}

// Categories returns a copy of the cached category collection.
func (c *Cache) Categories() []entity.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]entity.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// SetCategories replaces the cached category collection.
func (c *Cache) SetCategories(categories []entity.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = make([]entity.Category, len(categories))
	copy(c.categories, categories)
}
