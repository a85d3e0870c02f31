package cartsync

import "sync"

// EventType identifies a signal emitted by the sync engine.
type EventType string

const (
	// EventSyncStart marks the beginning of a drain pass.
	EventSyncStart EventType = "sync-start"

	// EventSyncComplete marks the end of a drain pass and carries the
	// remaining pending count.
	EventSyncComplete EventType = "sync-complete"

	// EventSyncError reports a pass-level failure (the queue itself could
	// not be processed).
	EventSyncError EventType = "sync-error"

	// EventActionComplete reports one action confirmed by the server.
	EventActionComplete EventType = "action-complete"

	// EventActionError reports one action dropped (conflict, permanent
	// client error, or retry exhaustion).
	EventActionError EventType = "action-error"
)

// Event is the engine's only public signal. No synchronous return value is
// guaranteed beyond "queued" at enqueue time.
type Event struct {
	Type         EventType
	ActionID     string
	ActionType   ActionType
	Err          error
	PendingCount int
}

// EventHandler receives engine events. Handlers run on the draining
// goroutine, in emission order; they must not block.
type EventHandler func(Event)

// eventBus fans engine events out to subscribers.
type eventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[int]EventHandler)}
}

// subscribe registers a handler and returns an unsubscribe func.
func (b *eventBus) subscribe(h EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// emit delivers the event to every subscriber. Each subscriber sees events
// in emission order; ordering across subscribers is not guaranteed. A
// panicking subscriber does not take down the drain.
func (b *eventBus) emit(ev Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				_ = recover()
			}()
			h(ev)
		}()
	}
}
