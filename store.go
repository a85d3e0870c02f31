package cartsync

import (
	"context"

	"github.com/c0deZ3R0/go-cart-sync/entity"
)

// MirrorStore is the persistent client-side cache of last-known-good server
// entities used for offline reads. It is a cache, never a second source of
// truth: any authoritative fetch supersedes its contents.
//
// Implementations must degrade rather than fail on reads: a missing record
// or an empty store returns zero values, so an offline view can always
// render.
type MirrorStore interface {
	GetList(ctx context.Context, id string) (*entity.ListWithCounts, error)
	SetList(ctx context.Context, list *entity.ListWithCounts) error
	DeleteList(ctx context.Context, id string) error
	Lists(ctx context.Context) ([]entity.ListWithCounts, error)
	// ReplaceLists clears the mirrored lists and inserts the given ones.
	// Used after a successful online fetch to discard stale entries.
	ReplaceLists(ctx context.Context, lists []entity.ListWithCounts) error

	GetItem(ctx context.Context, id string) (*entity.Item, error)
	SetItem(ctx context.Context, item *entity.Item) error
	DeleteItem(ctx context.Context, id string) error
	ItemsByList(ctx context.Context, listID string) ([]entity.Item, error)
	// ReplaceListItems clears the mirrored items of one list and inserts
	// the given ones.
	ReplaceListItems(ctx context.Context, listID string, items []entity.Item) error

	Categories(ctx context.Context) ([]entity.Category, error)
	ReplaceCategories(ctx context.Context, categories []entity.Category) error

	// RecomputeListAggregates scans the mirror's items for the list and
	// rewrites the list's TotalItems/CheckedItems/TotalPrice fields. A
	// no-op when the list is not mirrored.
	RecomputeListAggregates(ctx context.Context, listID string) error
}

// ActionLog is the durable, time-ordered queue of pending actions. The log
// is append-only except for removal on terminal resolution; Pending returns
// actions ordered by ID, which is the causal order of user intent.
type ActionLog interface {
	Append(ctx context.Context, action *PendingAction) error
	Pending(ctx context.Context) ([]PendingAction, error)
	// Update persists a rescheduled action's retry state in place.
	Update(ctx context.Context, action *PendingAction) error
	Remove(ctx context.Context, id string) error
	PendingCount(ctx context.Context) (int, error)
}

// SyncMeta is advisory bookkeeping about the last completed sync. It is not
// consulted by the conflict policy.
type SyncMeta struct {
	LastSyncAt int64  `json:"lastSyncAt"`
	DeviceID   string `json:"deviceId"`
}

// MetaStore persists SyncMeta across restarts.
type MetaStore interface {
	LoadMeta(ctx context.Context) (*SyncMeta, error)
	SaveMeta(ctx context.Context, meta *SyncMeta) error
}

// Store bundles the three persistence contracts a backend provides.
type Store interface {
	MirrorStore
	ActionLog
	MetaStore
	Close() error
}
