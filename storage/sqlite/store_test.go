package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartsync "github.com/c0deZ3R0/go-cart-sync"
	"github.com/c0deZ3R0/go-cart-sync/entity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "cartsync.db")
	store, err := NewWithDataSource(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func strptr(s string) *string   { return &s }
func f64ptr(f float64) *float64 { return &f }

func TestListRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.GetList(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing list reads as nil, not an error")

	list := &entity.ListWithCounts{
		List:       entity.List{ID: "l1", Name: "Groceries", Version: 2, CreatedAt: 100, UpdatedAt: 200},
		TotalItems: 3, CheckedItems: 1, TotalPrice: 9.50,
	}
	require.NoError(t, store.SetList(ctx, list))

	got, err := store.GetList(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, list, got)

	list.Name = "Weekend groceries"
	require.NoError(t, store.SetList(ctx, list), "SetList upserts")
	got, err = store.GetList(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Weekend groceries", got.Name)

	require.NoError(t, store.DeleteList(ctx, "l1"))
	got, err = store.GetList(ctx, "l1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReplaceListsDiscardsStaleEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetList(ctx, &entity.ListWithCounts{List: entity.List{ID: "stale", Name: "Old"}}))

	fresh := []entity.ListWithCounts{
		{List: entity.List{ID: "a", Name: "First", CreatedAt: 1}},
		{List: entity.List{ID: "b", Name: "Second", CreatedAt: 2}},
	}
	require.NoError(t, store.ReplaceLists(ctx, fresh))

	lists, err := store.Lists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "a", lists[0].ID)
	assert.Equal(t, "b", lists[1].ID)
}

func TestItemNullableColumns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bare := &entity.Item{ID: "i1", ListID: "l1", Name: "Milk", Quantity: 1, SortOrder: 0, Version: 1}
	require.NoError(t, store.SetItem(ctx, bare))

	full := &entity.Item{
		ID: "i2", ListID: "l1", Name: "Coffee", Quantity: 2,
		Unit: strptr("kg"), CategoryID: "c1",
		Checked: true, CheckedBy: strptr("u1"), CheckedByName: strptr("Alex"),
		Price: f64ptr(12.90), Store: strptr("Roastery"), SortOrder: 1, Version: 3,
	}
	require.NoError(t, store.SetItem(ctx, full))

	got, err := store.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, got.Unit)
	assert.Nil(t, got.Price)
	assert.Nil(t, got.CheckedBy)

	got, err = store.GetItem(ctx, "i2")
	require.NoError(t, err)
	assert.Equal(t, full, got)
}

func TestItemsByListOrdersBySortOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, it := range []entity.Item{
		{ID: "c", ListID: "l1", Name: "Bread", Quantity: 1, SortOrder: 2},
		{ID: "a", ListID: "l1", Name: "Milk", Quantity: 1, SortOrder: 0},
		{ID: "b", ListID: "l1", Name: "Eggs", Quantity: 1, SortOrder: 1},
		{ID: "x", ListID: "other", Name: "Nails", Quantity: 1, SortOrder: 0},
	} {
		it := it
		require.NoError(t, store.SetItem(ctx, &it))
	}

	items, err := store.ItemsByList(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestReplaceListItemsIsScopedToList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, &entity.Item{ID: "keep", ListID: "l2", Name: "Nails", Quantity: 1}))
	require.NoError(t, store.SetItem(ctx, &entity.Item{ID: "drop", ListID: "l1", Name: "Old", Quantity: 1}))

	require.NoError(t, store.ReplaceListItems(ctx, "l1", []entity.Item{
		{ID: "new", ListID: "l1", Name: "Milk", Quantity: 1},
	}))

	l1, err := store.ItemsByList(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, l1, 1)
	assert.Equal(t, "new", l1[0].ID)

	l2, err := store.ItemsByList(ctx, "l2")
	require.NoError(t, err)
	require.Len(t, l2, 1, "other lists must be untouched")
}

func TestRecomputeListAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetList(ctx, &entity.ListWithCounts{List: entity.List{ID: "l1", Name: "Groceries"}}))
	require.NoError(t, store.ReplaceListItems(ctx, "l1", []entity.Item{
		{ID: "a", ListID: "l1", Name: "Milk", Quantity: 2, Price: f64ptr(1.50), Checked: true},
		{ID: "b", ListID: "l1", Name: "Eggs", Quantity: 1, Price: f64ptr(3.00)},
		{ID: "c", ListID: "l1", Name: "Napkins", Quantity: 5}, // unpriced
	}))

	require.NoError(t, store.RecomputeListAggregates(ctx, "l1"))

	list, err := store.GetList(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, 3, list.TotalItems)
	assert.Equal(t, 1, list.CheckedItems)
	assert.InDelta(t, 2*1.50+3.00, list.TotalPrice, 1e-9)

	require.NoError(t, store.RecomputeListAggregates(ctx, "not-mirrored"), "unknown list is a no-op")
}

func TestActionLogFIFOAndRetryState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := cartsync.NewPendingAction(cartsync.ActionItemCreate, "/api/lists/l1/items", "POST", []byte(`{"name":"Milk"}`))
	second := cartsync.NewPendingAction(cartsync.ActionListUpdate, "/api/lists/l1", "PUT", nil)
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.JSONEq(t, `{"name":"Milk"}`, string(pending[0].Payload))
	assert.Nil(t, pending[1].Payload)

	first.RetryCount = 2
	first.LastError = "status 503"
	require.NoError(t, store.Update(ctx, first))

	pending, err = store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending[0].RetryCount)
	assert.Equal(t, "status 503", pending[0].LastError)

	require.NoError(t, store.Remove(ctx, first.ID))
	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncMetaRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.LoadMeta(ctx)
	require.NoError(t, err)
	assert.Nil(t, meta, "fresh store has no meta")

	require.NoError(t, store.SaveMeta(ctx, &cartsync.SyncMeta{LastSyncAt: 42, DeviceID: "dev-1"}))
	require.NoError(t, store.SaveMeta(ctx, &cartsync.SyncMeta{LastSyncAt: 99, DeviceID: "dev-1"}))

	meta, err = store.LoadMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(99), meta.LastSyncAt)
	assert.Equal(t, "dev-1", meta.DeviceID)
}

func TestClosedStoreRefusesOperations(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "Close is idempotent")

	_, err := store.Lists(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Append(context.Background(), cartsync.NewPendingAction(cartsync.ActionListCreate, "/api/lists", "POST", nil)), ErrStoreClosed)
}

func TestSurvivesReopen(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "cartsync.db")
	ctx := context.Background()

	store, err := NewWithDataSource(dsn)
	require.NoError(t, err)
	require.NoError(t, store.SetList(ctx, &entity.ListWithCounts{List: entity.List{ID: "l1", Name: "Groceries"}}))
	action := cartsync.NewPendingAction(cartsync.ActionListCreate, "/api/lists", "POST", nil)
	require.NoError(t, store.Append(ctx, action))
	require.NoError(t, store.Close())

	reopened, err := NewWithDataSource(dsn)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.GetList(ctx, "l1")
	require.NoError(t, err)
	require.NotNil(t, list, "mirror must survive restart")

	pending, err := reopened.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "queued actions must survive restart")
	assert.Equal(t, action.ID, pending[0].ID)
}
