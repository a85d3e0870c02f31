package cartsync

import (
	"context"

	"github.com/c0deZ3R0/go-cart-sync/entity"
)

// Transport executes one pending action against the remote API. The
// endpoint is opaque to the engine; responses are classified purely by HTTP
// status into the tagged error kinds of the errors package:
//
//   - nil for any 2xx
//   - *errors.SyncError with KindConflict for 409
//   - KindClient for other 4xx
//   - KindServer for 5xx
//   - KindNetwork when no response arrived at all
//
// The engine's outcome policy consumes these kinds exhaustively.
type Transport interface {
	Execute(ctx context.Context, action *PendingAction) error
}

// Fetcher retrieves authoritative collections from the server. The
// reconciler uses it to converge the local view after a settled mutation.
type Fetcher interface {
	FetchLists(ctx context.Context) ([]entity.ListWithCounts, error)
	FetchItems(ctx context.Context, listID string) ([]entity.Item, error)
	FetchCategories(ctx context.Context) ([]entity.Category, error)
}
