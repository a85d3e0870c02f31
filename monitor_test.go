package cartsync

import (
	"context"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestMonitorDrainsOnReconnect(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, _ := newTestEngine(t, transport, provider, nil)

	monitor := NewMonitor(engine, provider, store, nil, time.Hour)
	defer monitor.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := engine.Enqueue(ctx, ActionItemCreate, "/api/lists/l1/items", "POST", nil); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	provider.SetOnline(true)

	waitFor(t, time.Second, func() bool {
		n, _ := store.PendingCount(ctx)
		return n == 0
	}, "reconnect did not trigger a drain")

	waitFor(t, time.Second, func() bool {
		return monitor.Status().PendingCount == 0
	}, "monitor status never caught up")
}

func TestMonitorStatusTracksEvents(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, _ := newTestEngine(t, transport, provider, nil)

	monitor := NewMonitor(engine, provider, store, nil, time.Hour)
	defer monitor.Close()

	ctx := context.Background()
	if _, err := engine.Enqueue(ctx, ActionListCreate, "/api/lists", "POST", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return monitor.Status().PendingCount == 1
	}, "pending count never reflected the enqueue")

	st := monitor.Status()
	if st.Online {
		t.Error("status should report offline")
	}
	if st.Syncing {
		t.Error("nothing is draining yet")
	}

	provider.SetOnline(true)
	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		st := monitor.Status()
		return st.PendingCount == 0 && !st.Syncing && st.LastSyncError == nil
	}, "status never settled after the drain")
}

func TestMonitorTriggerSync(t *testing.T) {
	provider := NewSignalProvider()
	provider.SetOnline(false)
	transport := NewMockTransport()
	engine, store, _ := newTestEngine(t, transport, provider, nil)

	monitor := NewMonitor(engine, provider, store, nil, time.Hour)
	defer monitor.Close()

	ctx := context.Background()
	if _, err := engine.Enqueue(ctx, ActionListCreate, "/api/lists", "POST", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	provider.SetOnline(true)

	waitFor(t, time.Second, func() bool {
		n, _ := store.PendingCount(ctx)
		if n == 0 {
			return true
		}
		monitor.TriggerSync()
		return false
	}, "manual trigger never drained the queue")
}

func TestMonitorCloseIsIdempotent(t *testing.T) {
	provider := NewSignalProvider()
	engine, store, _ := newTestEngine(t, NewMockTransport(), provider, nil)

	monitor := NewMonitor(engine, provider, store, nil, time.Hour)
	monitor.Close()
	monitor.Close()
}
