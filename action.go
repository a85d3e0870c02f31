package cartsync

import (
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ActionType tags the mutation kind of a pending action.
type ActionType string

const (
	ActionListCreate     ActionType = "list.create"
	ActionListUpdate     ActionType = "list.update"
	ActionListDelete     ActionType = "list.delete"
	ActionItemCreate     ActionType = "item.create"
	ActionItemUpdate     ActionType = "item.update"
	ActionItemDelete     ActionType = "item.delete"
	ActionItemToggle     ActionType = "item.toggle"
	ActionItemReorder    ActionType = "item.reorder"
	ActionCategoryCreate ActionType = "category.create"
	ActionCategoryUpdate ActionType = "category.update"
	ActionCategoryDelete ActionType = "category.delete"
)

// PendingAction is a durable record of an intended mutation not yet
// confirmed by the server. Actions are ordered by ID; because IDs are
// monotonic ULIDs, that order is the causal order of user intent.
type PendingAction struct {
	ID         string          `json:"id"`
	Type       ActionType      `json:"type"`
	Endpoint   string          `json:"endpoint"`
	Method     string          `json:"method"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
	RetryCount int             `json:"retryCount"`
	LastError  string          `json:"lastError,omitempty"`
}

// entropy is shared so that IDs minted in the same millisecond still sort
// in mint order.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a fresh 26-character time-ordered identifier. IDs are
// strictly monotonic within a process.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}

// NewPendingAction builds a pending action with a fresh sortable ID.
func NewPendingAction(actionType ActionType, endpoint, method string, payload json.RawMessage) *PendingAction {
	return &PendingAction{
		ID:        NewID(),
		Type:      actionType,
		Endpoint:  endpoint,
		Method:    method,
		Payload:   payload,
		CreatedAt: nowMilli(),
	}
}
