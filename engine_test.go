package cartsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	syncErrors "github.com/c0deZ3R0/go-cart-sync/errors"
)

// eventRecorder captures engine events in emission order.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestEngine(t *testing.T, transport Transport, provider ConnectivityProvider, opts *Options) (*Engine, *MemoryStore, *eventRecorder) {
	t.Helper()
	store := NewMemoryStore()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Backoff == nil {
		opts.Backoff = &TableBackoff{Delays: []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}}
	}
	engine := NewEngine(store, store, transport, provider, opts)
	t.Cleanup(func() { engine.Close() })

	rec := &eventRecorder{}
	engine.Subscribe(rec.handle)
	return engine, store, rec
}

func TestEnqueuePreservesFIFOAcrossEntityTypes(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	engine, store, _ := newTestEngine(t, NewMockTransport(), provider, nil)

	ctx := context.Background()
	var want []string
	enqueue := func(at ActionType, endpoint, method string) {
		a, err := engine.Enqueue(ctx, at, endpoint, method, nil)
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		want = append(want, a.ID)
	}

	enqueue(ActionItemCreate, "/api/lists/l1/items", "POST")
	enqueue(ActionListUpdate, "/api/lists/l1", "PUT")
	enqueue(ActionCategoryCreate, "/api/categories", "POST")
	enqueue(ActionItemToggle, "/api/lists/l1/items/i1/toggle", "PATCH")

	pending, err := store.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != len(want) {
		t.Fatalf("pending count = %d, want %d", len(pending), len(want))
	}
	for i, a := range pending {
		if a.ID != want[i] {
			t.Errorf("pending[%d].ID = %s, want %s (FIFO violated)", i, a.ID, want[i])
		}
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	provider := NewSignalProvider()
	engine, _, rec := newTestEngine(t, NewMockTransport(), provider, nil)

	if err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want exactly sync-start and sync-complete: %+v", len(events), events)
	}
	if events[0].Type != EventSyncStart {
		t.Errorf("first event = %s, want %s", events[0].Type, EventSyncStart)
	}
	if events[1].Type != EventSyncComplete {
		t.Errorf("second event = %s, want %s", events[1].Type, EventSyncComplete)
	}
	if events[1].PendingCount != 0 {
		t.Errorf("sync-complete pending count = %d, want 0", events[1].PendingCount)
	}
}

func TestConflictDropsActionWithoutRetry(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, rec := newTestEngine(t, transport, provider, nil)

	ctx := context.Background()
	if _, err := engine.Enqueue(ctx, ActionItemUpdate, "/api/lists/l1/items/i1", "PUT", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := engine.Enqueue(ctx, ActionItemDelete, "/api/lists/l1/items/i2", "DELETE", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	transport.Script(ActionItemUpdate, syncErrors.NewConflictError(syncErrors.OpExecute, errors.New("version mismatch")))
	provider.SetOnline(true)
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if n, _ := store.PendingCount(ctx); n != 0 {
		t.Errorf("pending count = %d, want 0 (conflict dropped, rest processed)", n)
	}

	actionErrors := rec.ofType(EventActionError)
	if len(actionErrors) != 1 {
		t.Fatalf("got %d action-error events, want 1", len(actionErrors))
	}
	if syncErrors.KindOf(actionErrors[0].Err) != syncErrors.KindConflict {
		t.Errorf("action-error kind = %s, want conflict", syncErrors.KindOf(actionErrors[0].Err))
	}
	if len(rec.ofType(EventActionComplete)) != 1 {
		t.Error("the non-conflicting action should still complete")
	}
}

func TestClientErrorDropsActionWithoutRetry(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, rec := newTestEngine(t, transport, provider, nil)

	ctx := context.Background()
	if _, err := engine.Enqueue(ctx, ActionListCreate, "/api/lists", "POST", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	transport.Script(ActionListCreate, syncErrors.NewClientError(syncErrors.OpExecute, 400, errors.New("name required")))

	provider.SetOnline(true)
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if n, _ := store.PendingCount(ctx); n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
	if len(rec.ofType(EventActionError)) != 1 {
		t.Error("expected one action-error event")
	}
	if len(transport.Executed) != 1 {
		t.Errorf("transport executed %d times, want 1 (no retry)", len(transport.Executed))
	}
}

func TestServerErrorIncrementsRetryAndReschedules(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, _ := newTestEngine(t, transport, provider, nil)

	ctx := context.Background()
	if _, err := engine.Enqueue(ctx, ActionListUpdate, "/api/lists/l1", "PUT", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	transport.Script(ActionListUpdate,
		syncErrors.NewServerError(syncErrors.OpExecute, 500, errors.New("boom")),
		nil, // next attempt succeeds
	)

	provider.SetOnline(true)
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	pending, _ := store.Pending(ctx)
	if len(pending) != 1 {
		t.Fatalf("action should stay queued after transient failure, pending = %d", len(pending))
	}
	if pending[0].RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", pending[0].RetryCount)
	}
	if pending[0].LastError == "" {
		t.Error("LastError should record the failure")
	}

	// The backoff timer redrains; the scripted second attempt succeeds.
	deadline := time.After(time.Second)
	for {
		if n, _ := store.PendingCount(ctx); n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("rescheduled drain never cleared the queue")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if len(transport.Executed) != 2 {
		t.Errorf("transport executed %d times, want 2", len(transport.Executed))
	}
}

func TestRetryCeilingDropsAction(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, rec := newTestEngine(t, transport, provider, nil)

	ctx := context.Background()
	action, err := engine.Enqueue(ctx, ActionItemCreate, "/api/lists/l1/items", "POST", nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	// Simulate a history of five transient failures.
	action.RetryCount = DefaultRetryCeiling
	action.LastError = "status 500"
	if err := store.Update(ctx, action); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	transport.Script(ActionItemCreate, syncErrors.NewServerError(syncErrors.OpExecute, 500, errors.New("still broken")))
	provider.SetOnline(true)
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if n, _ := store.PendingCount(ctx); n != 0 {
		t.Errorf("pending count = %d, want 0 (retry exhaustion drops)", n)
	}
	actionErrors := rec.ofType(EventActionError)
	if len(actionErrors) != 1 {
		t.Fatalf("got %d action-error events, want 1", len(actionErrors))
	}
	if !strings.Contains(actionErrors[0].Err.Error(), "max retries exceeded") {
		t.Errorf("error = %q, want max retries exceeded", actionErrors[0].Err)
	}
}

// blockingTransport holds every Execute until released.
type blockingTransport struct {
	started  chan struct{}
	release  chan struct{}
	executed int
	mu       sync.Mutex
}

func (b *blockingTransport) Execute(ctx context.Context, action *PendingAction) error {
	b.mu.Lock()
	b.executed++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return nil
}

func TestDrainIsSingleFlight(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := &blockingTransport{started: make(chan struct{}, 1), release: make(chan struct{})}
	engine, _, rec := newTestEngine(t, transport, provider, nil)

	ctx := context.Background()
	if _, err := engine.Enqueue(ctx, ActionListCreate, "/api/lists", "POST", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	provider.SetOnline(true)

	done := make(chan struct{})
	go func() {
		engine.Drain(ctx)
		close(done)
	}()
	<-transport.started // first pass is mid-action

	// Concurrent drains while one is in flight must be no-ops.
	for i := 0; i < 3; i++ {
		if err := engine.Drain(ctx); err != nil {
			t.Fatalf("no-op Drain returned error: %v", err)
		}
	}

	close(transport.release)
	<-done

	if got := len(rec.ofType(EventSyncStart)); got != 1 {
		t.Errorf("got %d sync-start events, want 1 (single-flight violated)", got)
	}
	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.executed != 1 {
		t.Errorf("action executed %d times, want 1", transport.executed)
	}
}

func TestOfflineEnqueueThenOnlineDrain(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, rec := newTestEngine(t, transport, provider, nil)

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		a, err := engine.Enqueue(ctx, ActionItemCreate, "/api/lists/l1/items", "POST", nil)
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		ids = append(ids, a.ID)
	}
	if n, _ := store.PendingCount(ctx); n != 3 {
		t.Fatalf("pending count = %d, want 3", n)
	}

	provider.SetOnline(true)
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if got := transport.ExecutedIDs(); len(got) != 3 || got[0] != ids[0] || got[1] != ids[1] || got[2] != ids[2] {
		t.Errorf("executed order %v, want FIFO %v", got, ids)
	}

	completes := rec.ofType(EventActionComplete)
	if len(completes) != 3 {
		t.Fatalf("got %d action-complete events, want 3", len(completes))
	}
	for i, want := range []int{2, 1, 0} {
		if completes[i].PendingCount != want {
			t.Errorf("action-complete[%d] pending count = %d, want %d", i, completes[i].PendingCount, want)
		}
	}
	final := rec.ofType(EventSyncComplete)
	if len(final) != 1 || final[0].PendingCount != 0 {
		t.Errorf("sync-complete = %+v, want one event with pending count 0", final)
	}
}

func TestTransportFailureAbortsPass(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, rec := newTestEngine(t, transport, provider, nil)

	ctx := context.Background()
	if _, err := engine.Enqueue(ctx, ActionListCreate, "/api/lists", "POST", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	var tail []string
	for i := 0; i < 2; i++ {
		a, err := engine.Enqueue(ctx, ActionItemCreate, "/api/lists/l1/items", "POST", nil)
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		tail = append(tail, a.ID)
	}

	// 2nd action dies with a raw network failure.
	transport.Script(ActionItemCreate, syncErrors.NewNetworkError(syncErrors.OpExecute, errors.New("connection refused")))

	provider.SetOnline(true)
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	pending, _ := store.Pending(ctx)
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2 (pass paused, queue preserved)", len(pending))
	}
	for i, a := range pending {
		if a.ID != tail[i] {
			t.Errorf("pending[%d] = %s, want %s", i, a.ID, tail[i])
		}
		if a.RetryCount != 0 {
			t.Errorf("network pause must not burn retries, RetryCount = %d", a.RetryCount)
		}
	}
	if len(rec.ofType(EventActionComplete)) != 1 {
		t.Error("action 1 should have completed before the pause")
	}
	final := rec.ofType(EventSyncComplete)
	if len(final) != 1 || final[0].PendingCount != 2 {
		t.Errorf("sync-complete = %+v, want pending count 2", final)
	}
}

func TestConnectivityLossStopsPass(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, _ := newTestEngine(t, transport, provider, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := engine.Enqueue(ctx, ActionItemCreate, fmt.Sprintf("/api/lists/l1/items?i=%d", i), "POST", nil); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	// Flip offline after the first successful execution.
	transport.DefaultErr = nil
	engine.Subscribe(func(ev Event) {
		if ev.Type == EventActionComplete {
			provider.SetOnline(false)
		}
	})

	provider.SetOnline(true)
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if n, _ := store.PendingCount(ctx); n != 2 {
		t.Errorf("pending = %d, want 2 (remaining actions stay queued, unchanged)", n)
	}
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	provider := NewSignalProvider()
	engine, _, _ := newTestEngine(t, NewMockTransport(), provider, nil)

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := engine.Enqueue(context.Background(), ActionListCreate, "/api/lists", "POST", nil); err == nil {
		t.Error("Enqueue on a closed engine should fail")
	}
	if err := engine.Drain(context.Background()); err != nil {
		t.Errorf("Drain on a closed engine should be a no-op, got %v", err)
	}
}

func TestDrainRecordsSyncMeta(t *testing.T) {
	provider := NewSignalProvider()
	engine, store, _ := newTestEngine(t, NewMockTransport(), provider, nil)

	ctx := context.Background()
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	meta, err := store.LoadMeta(ctx)
	if err != nil || meta == nil {
		t.Fatalf("meta not saved: %v", err)
	}
	if meta.DeviceID == "" {
		t.Error("DeviceID should be minted on first sync")
	}
	if meta.LastSyncAt == 0 {
		t.Error("LastSyncAt should be recorded")
	}

	// A second pass keeps the device ID stable.
	deviceID := meta.DeviceID
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	meta, _ = store.LoadMeta(ctx)
	if meta.DeviceID != deviceID {
		t.Errorf("DeviceID changed across syncs: %s != %s", meta.DeviceID, deviceID)
	}
}
