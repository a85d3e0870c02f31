package cartsync

import (
	"context"
	"sync"

	"github.com/c0deZ3R0/go-cart-sync/entity"
)

// MockTransport scripts per-action responses for tests. Responses are
// consulted by action type first, then the default response; a nil entry
// means success.
type MockTransport struct {
	mu sync.Mutex

	// Responses maps an action type to the scripted error sequence for
	// that type; each execution consumes one entry and the last entry
	// sticks.
	Responses map[ActionType][]error

	// DefaultErr is returned for action types with no script.
	DefaultErr error

	// Executed records every action in execution order.
	Executed []PendingAction
}

// NewMockTransport creates a transport that succeeds for everything.
func NewMockTransport() *MockTransport {
	return &MockTransport{Responses: make(map[ActionType][]error)}
}

// Script queues the error sequence for one action type.
func (t *MockTransport) Script(actionType ActionType, errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Responses[actionType] = errs
}

func (t *MockTransport) Execute(ctx context.Context, action *PendingAction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Executed = append(t.Executed, *action)

	script, ok := t.Responses[action.Type]
	if !ok || len(script) == 0 {
		return t.DefaultErr
	}
	err := script[0]
	if len(script) > 1 {
		t.Responses[action.Type] = script[1:]
	}
	return err
}

// ExecutedIDs returns the IDs of executed actions in order.
func (t *MockTransport) ExecutedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, len(t.Executed))
	for i, a := range t.Executed {
		ids[i] = a.ID
	}
	return ids
}

// MockFetcher serves canned authoritative collections.
type MockFetcher struct {
	mu         sync.Mutex
	ListsValue []entity.ListWithCounts
	ItemsValue map[string][]entity.Item
	CatsValue  []entity.Category
	Err        error
	FetchCalls int
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{ItemsValue: make(map[string][]entity.Item)}
}

func (f *MockFetcher) FetchLists(ctx context.Context) ([]entity.ListWithCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]entity.ListWithCounts, len(f.ListsValue))
	copy(out, f.ListsValue)
	return out, nil
}

func (f *MockFetcher) FetchItems(ctx context.Context, listID string) ([]entity.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	items := f.ItemsValue[listID]
	out := make([]entity.Item, len(items))
	copy(out, items)
	return out, nil
}

func (f *MockFetcher) FetchCategories(ctx context.Context) ([]entity.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]entity.Category, len(f.CatsValue))
	copy(out, f.CatsValue)
	return out, nil
}

// SetServerState swaps the canned collections under lock.
func (f *MockFetcher) SetServerState(lists []entity.ListWithCounts, items map[string][]entity.Item, cats []entity.Category) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListsValue = lists
	if items != nil {
		f.ItemsValue = items
	}
	f.CatsValue = cats
}
