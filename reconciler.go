package cartsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/c0deZ3R0/go-cart-sync/entity"
	syncErrors "github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// Reconciler applies every mutation optimistically: it snapshots the
// visible collection, patches the in-memory cache and the mirror store
// before any I/O, then either calls the API directly (online) or enqueues a
// pending action (offline). A failed direct call restores the snapshot
// exactly; a settled online mutation refetches the affected collections so
// the view converges to the authoritative server state. Offline, the
// optimistic state stands until the next successful drain.
type Reconciler struct {
	cache     *Cache
	mirror    MirrorStore
	engine    *Engine
	transport Transport
	fetcher   Fetcher
	provider  ConnectivityProvider
	logger    *logging.Logger
}

// NewReconciler wires the optimistic write path.
func NewReconciler(cache *Cache, mirror MirrorStore, engine *Engine, transport Transport, fetcher Fetcher, provider ConnectivityProvider, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		cache:     cache,
		mirror:    mirror,
		engine:    engine,
		transport: transport,
		fetcher:   fetcher,
		provider:  provider,
		logger:    logger.WithComponent("reconciler"),
	}
}

// Cache exposes the view the reconciler maintains.
func (r *Reconciler) Cache() *Cache {
	return r.cache
}

// LoadFromMirror hydrates the cache from the mirror store, the offline
// startup path. A missing or empty mirror yields an empty, renderable view.
func (r *Reconciler) LoadFromMirror(ctx context.Context) error {
	lists, err := r.mirror.Lists(ctx)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	r.cache.SetLists(lists)
	for _, l := range lists {
		items, err := r.mirror.ItemsByList(ctx, l.ID)
		if err != nil {
			return syncErrors.NewStorageError(syncErrors.OpLoad, err)
		}
		r.cache.SetItems(l.ID, items)
	}
	categories, err := r.mirror.Categories(ctx)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	r.cache.SetCategories(categories)
	return nil
}

// RefreshAll fetches every collection from the server, replacing both the
// cache and the mirror. The online startup path.
func (r *Reconciler) RefreshAll(ctx context.Context) error {
	if err := r.refetchLists(ctx); err != nil {
		return err
	}
	for _, l := range r.cache.Lists() {
		if err := r.refetchItems(ctx, l.ID); err != nil {
			return err
		}
	}
	return r.refetchCategories(ctx)
}

// CreateList adds a list optimistically and settles it with the server.
func (r *Reconciler) CreateList(ctx context.Context, name string) (*entity.ListWithCounts, error) {
	now := nowMilli()
	list := entity.ListWithCounts{List: entity.List{
		ID:        NewID(),
		Name:      name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	snap := r.cache.Lists()
	r.cache.SetLists(append(r.cache.Lists(), list))
	if err := r.mirror.SetList(ctx, &list); err != nil {
		r.logger.LogError(ctx, err, "mirror write failed")
	}

	err := r.settle(ctx, ActionListCreate, "/api/lists", http.MethodPost,
		mustMarshal(entity.CreateListRequest{Name: name}),
		func() { r.restoreLists(ctx, snap) },
		r.refetchLists,
	)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// UpdateList renames a list optimistically.
func (r *Reconciler) UpdateList(ctx context.Context, id, name string) error {
	snap := r.cache.Lists()
	lists := r.cache.Lists()
	found := false
	for i := range lists {
		if lists[i].ID == id {
			lists[i].Name = name
			lists[i].UpdatedAt = nowMilli()
			found = true
			if err := r.mirror.SetList(ctx, &lists[i]); err != nil {
				r.logger.LogError(ctx, err, "mirror write failed")
			}
			break
		}
	}
	if !found {
		return syncErrors.NewClientError(syncErrors.OpReconcile, http.StatusNotFound, fmt.Errorf("list %s not in view", id))
	}
	r.cache.SetLists(lists)

	return r.settle(ctx, ActionListUpdate, "/api/lists/"+id, http.MethodPut,
		mustMarshal(entity.UpdateListRequest{Name: name}),
		func() { r.restoreLists(ctx, snap) },
		r.refetchLists,
	)
}

// DeleteList removes a list and its items optimistically.
func (r *Reconciler) DeleteList(ctx context.Context, id string) error {
	listSnap := r.cache.Lists()
	itemSnap := r.cache.Items(id)

	lists := make([]entity.ListWithCounts, 0, len(listSnap))
	for _, l := range listSnap {
		if l.ID != id {
			lists = append(lists, l)
		}
	}
	r.cache.SetLists(lists)
	r.cache.DropItems(id)
	if err := r.mirror.DeleteList(ctx, id); err != nil {
		r.logger.LogError(ctx, err, "mirror delete failed")
	}
	if err := r.mirror.ReplaceListItems(ctx, id, nil); err != nil {
		r.logger.LogError(ctx, err, "mirror delete failed")
	}

	return r.settle(ctx, ActionListDelete, "/api/lists/"+id, http.MethodDelete, nil,
		func() {
			r.restoreLists(ctx, listSnap)
			r.restoreItems(ctx, id, itemSnap)
		},
		r.refetchLists,
	)
}

// CreateItem adds an item optimistically, recomputing the list aggregates.
func (r *Reconciler) CreateItem(ctx context.Context, listID string, req entity.CreateItemRequest) (*entity.Item, error) {
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	items := r.cache.Items(listID)
	item := entity.Item{
		ID:         NewID(),
		ListID:     listID,
		Name:       req.Name,
		Quantity:   req.Quantity,
		Unit:       req.Unit,
		CategoryID: req.CategoryID,
		Price:      req.Price,
		Store:      req.Store,
		SortOrder:  len(items),
		Version:    1,
	}

	listSnap := r.cache.Lists()
	itemSnap := r.cache.Items(listID)

	r.applyItems(ctx, listID, append(items, item))

	err := r.settle(ctx, ActionItemCreate, itemsEndpoint(listID), http.MethodPost,
		mustMarshal(req),
		func() {
			r.restoreItems(ctx, listID, itemSnap)
			r.restoreLists(ctx, listSnap)
		},
		func(ctx context.Context) error { return r.refetchListAndItems(ctx, listID) },
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem applies a partial item update optimistically.
func (r *Reconciler) UpdateItem(ctx context.Context, listID, itemID string, req entity.UpdateItemRequest) error {
	listSnap := r.cache.Lists()
	itemSnap := r.cache.Items(listID)

	items := r.cache.Items(listID)
	found := false
	for i := range items {
		if items[i].ID != itemID {
			continue
		}
		found = true
		if req.Name != nil {
			items[i].Name = *req.Name
		}
		if req.Quantity != nil {
			items[i].Quantity = *req.Quantity
		}
		if req.Unit != nil {
			items[i].Unit = req.Unit
		}
		if req.CategoryID != nil {
			items[i].CategoryID = *req.CategoryID
		}
		if req.Price != nil {
			items[i].Price = req.Price
		}
		if req.Store != nil {
			items[i].Store = req.Store
		}
		break
	}
	if !found {
		return syncErrors.NewClientError(syncErrors.OpReconcile, http.StatusNotFound, fmt.Errorf("item %s not in view", itemID))
	}
	r.applyItems(ctx, listID, items)

	return r.settle(ctx, ActionItemUpdate, itemsEndpoint(listID)+"/"+itemID, http.MethodPut,
		mustMarshal(req),
		func() {
			r.restoreItems(ctx, listID, itemSnap)
			r.restoreLists(ctx, listSnap)
		},
		func(ctx context.Context) error { return r.refetchListAndItems(ctx, listID) },
	)
}

// DeleteItem removes an item optimistically.
func (r *Reconciler) DeleteItem(ctx context.Context, listID, itemID string) error {
	listSnap := r.cache.Lists()
	itemSnap := r.cache.Items(listID)

	items := make([]entity.Item, 0, len(itemSnap))
	for _, it := range itemSnap {
		if it.ID != itemID {
			items = append(items, it)
		}
	}
	r.applyItems(ctx, listID, items)

	return r.settle(ctx, ActionItemDelete, itemsEndpoint(listID)+"/"+itemID, http.MethodDelete, nil,
		func() {
			r.restoreItems(ctx, listID, itemSnap)
			r.restoreLists(ctx, listSnap)
		},
		func(ctx context.Context) error { return r.refetchListAndItems(ctx, listID) },
	)
}

// ToggleItem flips an item's checked state optimistically. Who checked it
// is server-assigned and converges on refetch.
func (r *Reconciler) ToggleItem(ctx context.Context, listID, itemID string) error {
	listSnap := r.cache.Lists()
	itemSnap := r.cache.Items(listID)

	items := r.cache.Items(listID)
	found := false
	for i := range items {
		if items[i].ID == itemID {
			items[i].Checked = !items[i].Checked
			if !items[i].Checked {
				items[i].CheckedBy = nil
				items[i].CheckedByName = nil
			}
			found = true
			break
		}
	}
	if !found {
		return syncErrors.NewClientError(syncErrors.OpReconcile, http.StatusNotFound, fmt.Errorf("item %s not in view", itemID))
	}
	r.applyItems(ctx, listID, items)

	return r.settle(ctx, ActionItemToggle, itemsEndpoint(listID)+"/"+itemID+"/toggle", http.MethodPatch, nil,
		func() {
			r.restoreItems(ctx, listID, itemSnap)
			r.restoreLists(ctx, listSnap)
		},
		func(ctx context.Context) error { return r.refetchListAndItems(ctx, listID) },
	)
}

// ReorderItems rewrites the sort order of a list's items optimistically.
func (r *Reconciler) ReorderItems(ctx context.Context, listID string, itemIDs []string) error {
	listSnap := r.cache.Lists()
	itemSnap := r.cache.Items(listID)

	byID := make(map[string]entity.Item, len(itemSnap))
	for _, it := range itemSnap {
		byID[it.ID] = it
	}
	items := make([]entity.Item, 0, len(itemIDs))
	for i, id := range itemIDs {
		it, ok := byID[id]
		if !ok {
			return syncErrors.NewClientError(syncErrors.OpReconcile, http.StatusNotFound, fmt.Errorf("item %s not in view", id))
		}
		it.SortOrder = i
		items = append(items, it)
	}
	r.applyItems(ctx, listID, items)

	return r.settle(ctx, ActionItemReorder, itemsEndpoint(listID)+"/reorder", http.MethodPut,
		mustMarshal(entity.ReorderItemsRequest{ItemIDs: itemIDs}),
		func() {
			r.restoreItems(ctx, listID, itemSnap)
			r.restoreLists(ctx, listSnap)
		},
		func(ctx context.Context) error { return r.refetchItems(ctx, listID) },
	)
}

// CreateCategory adds a category optimistically.
func (r *Reconciler) CreateCategory(ctx context.Context, req entity.CreateCategoryRequest) (*entity.Category, error) {
	snap := r.cache.Categories()
	sortOrder := len(snap)
	if req.SortOrder != nil {
		sortOrder = *req.SortOrder
	}
	category := entity.Category{
		ID:        NewID(),
		Name:      req.Name,
		Icon:      req.Icon,
		Color:     req.Color,
		SortOrder: sortOrder,
	}
	r.applyCategories(ctx, append(r.cache.Categories(), category))

	err := r.settle(ctx, ActionCategoryCreate, "/api/categories", http.MethodPost,
		mustMarshal(req),
		func() { r.restoreCategories(ctx, snap) },
		r.refetchCategories,
	)
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// UpdateCategory applies a partial category update optimistically.
func (r *Reconciler) UpdateCategory(ctx context.Context, id string, req entity.UpdateCategoryRequest) error {
	snap := r.cache.Categories()
	categories := r.cache.Categories()
	found := false
	for i := range categories {
		if categories[i].ID != id {
			continue
		}
		found = true
		if req.Name != nil {
			categories[i].Name = *req.Name
		}
		if req.Icon != nil {
			categories[i].Icon = *req.Icon
		}
		if req.Color != nil {
			categories[i].Color = *req.Color
		}
		if req.SortOrder != nil {
			categories[i].SortOrder = *req.SortOrder
		}
		break
	}
	if !found {
		return syncErrors.NewClientError(syncErrors.OpReconcile, http.StatusNotFound, fmt.Errorf("category %s not in view", id))
	}
	r.applyCategories(ctx, categories)

	return r.settle(ctx, ActionCategoryUpdate, "/api/categories/"+id, http.MethodPut,
		mustMarshal(req),
		func() { r.restoreCategories(ctx, snap) },
		r.refetchCategories,
	)
}

// DeleteCategory removes a category optimistically.
func (r *Reconciler) DeleteCategory(ctx context.Context, id string) error {
	snap := r.cache.Categories()
	categories := make([]entity.Category, 0, len(snap))
	for _, c := range snap {
		if c.ID != id {
			categories = append(categories, c)
		}
	}
	r.applyCategories(ctx, categories)

	return r.settle(ctx, ActionCategoryDelete, "/api/categories/"+id, http.MethodDelete, nil,
		func() { r.restoreCategories(ctx, snap) },
		r.refetchCategories,
	)
}

// settle dispatches the speculative mutation: a direct transport call when
// online, an enqueue when offline. Direct-call failure restores the
// snapshot via rollback; success triggers the convergence refetch.
func (r *Reconciler) settle(ctx context.Context, actionType ActionType, endpoint, method string, payload json.RawMessage, rollback func(), refetch func(context.Context) error) error {
	if !r.provider.Online() {
		if _, err := r.engine.Enqueue(ctx, actionType, endpoint, method, payload); err != nil {
			rollback()
			return err
		}
		return nil
	}

	action := NewPendingAction(actionType, endpoint, method, payload)
	if err := r.transport.Execute(ctx, action); err != nil {
		rollback()
		return err
	}
	if err := refetch(ctx); err != nil {
		// The mutation is confirmed; the optimistic state stands until
		// the next fetch succeeds.
		r.logger.LogError(ctx, err, "post-settle refetch failed")
	}
	return nil
}

// applyItems writes a list's items to cache and mirror and recomputes the
// list aggregates in both.
func (r *Reconciler) applyItems(ctx context.Context, listID string, items []entity.Item) {
	r.cache.SetItems(listID, items)
	if err := r.mirror.ReplaceListItems(ctx, listID, items); err != nil {
		r.logger.LogError(ctx, err, "mirror write failed")
	}
	if err := r.mirror.RecomputeListAggregates(ctx, listID); err != nil {
		r.logger.LogError(ctx, err, "mirror aggregate recompute failed")
	}

	agg := entity.ComputeAggregates(items)
	lists := r.cache.Lists()
	for i := range lists {
		if lists[i].ID == listID {
			agg.Apply(&lists[i])
			break
		}
	}
	r.cache.SetLists(lists)
}

func (r *Reconciler) applyCategories(ctx context.Context, categories []entity.Category) {
	r.cache.SetCategories(categories)
	if err := r.mirror.ReplaceCategories(ctx, categories); err != nil {
		r.logger.LogError(ctx, err, "mirror write failed")
	}
}

func (r *Reconciler) restoreLists(ctx context.Context, snap []entity.ListWithCounts) {
	r.cache.SetLists(snap)
	if err := r.mirror.ReplaceLists(ctx, snap); err != nil {
		r.logger.LogError(ctx, err, "mirror rollback failed")
	}
}

func (r *Reconciler) restoreItems(ctx context.Context, listID string, snap []entity.Item) {
	r.cache.SetItems(listID, snap)
	if err := r.mirror.ReplaceListItems(ctx, listID, snap); err != nil {
		r.logger.LogError(ctx, err, "mirror rollback failed")
	}
	if err := r.mirror.RecomputeListAggregates(ctx, listID); err != nil {
		r.logger.LogError(ctx, err, "mirror aggregate recompute failed")
	}
}

func (r *Reconciler) restoreCategories(ctx context.Context, snap []entity.Category) {
	r.cache.SetCategories(snap)
	if err := r.mirror.ReplaceCategories(ctx, snap); err != nil {
		r.logger.LogError(ctx, err, "mirror rollback failed")
	}
}

func (r *Reconciler) refetchLists(ctx context.Context) error {
	lists, err := r.fetcher.FetchLists(ctx)
	if err != nil {
		return err
	}
	r.cache.SetLists(lists)
	if err := r.mirror.ReplaceLists(ctx, lists); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	return nil
}

func (r *Reconciler) refetchItems(ctx context.Context, listID string) error {
	items, err := r.fetcher.FetchItems(ctx, listID)
	if err != nil {
		return err
	}
	r.cache.SetItems(listID, items)
	if err := r.mirror.ReplaceListItems(ctx, listID, items); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	return nil
}

func (r *Reconciler) refetchCategories(ctx context.Context) error {
	categories, err := r.fetcher.FetchCategories(ctx)
	if err != nil {
		return err
	}
	r.cache.SetCategories(categories)
	if err := r.mirror.ReplaceCategories(ctx, categories); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	return nil
}

// refetchListAndItems converges an item-level mutation: the items changed
// and so did the parent list's aggregates.
func (r *Reconciler) refetchListAndItems(ctx context.Context, listID string) error {
	if err := r.refetchItems(ctx, listID); err != nil {
		return err
	}
	return r.refetchLists(ctx)
}

func itemsEndpoint(listID string) string {
	return "/api/lists/" + listID + "/items"
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal request body: %v", err))
	}
	return data
}
