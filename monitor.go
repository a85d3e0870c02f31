package cartsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// DefaultPollInterval is the safety-net cadence at which the monitor
// re-reads the pending count from the log, in case an event was missed.
const DefaultPollInterval = 30 * time.Second

// Status is the connectivity and sync state snapshot exposed to the UI.
type Status struct {
	Online        bool
	Syncing       bool
	PendingCount  int
	LastSyncError error
}

// Monitor observes connectivity transitions and engine events. On a
// transition to online it triggers a drain; it keeps a pending-count and
// syncing snapshot current for status indicators.
type Monitor struct {
	engine   *Engine
	provider ConnectivityProvider
	log      ActionLog
	logger   *logging.Logger

	mu            sync.RWMutex
	syncing       bool
	pendingCount  int
	lastSyncError error

	unsubEvents func()
	unsubConn   func()
	stopPoll    chan struct{}
	closeOnce   sync.Once
}

// NewMonitor wires a monitor to the engine and provider and starts its
// periodic pending-count poll. Call Close to release it.
func NewMonitor(engine *Engine, provider ConnectivityProvider, log ActionLog, logger *logging.Logger, pollInterval time.Duration) *Monitor {
	if logger == nil {
		logger = logging.Default()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	m := &Monitor{
		engine:   engine,
		provider: provider,
		log:      log,
		logger:   logger.WithComponent("monitor"),
		stopPoll: make(chan struct{}),
	}

	m.unsubEvents = engine.Subscribe(m.onEvent)
	m.unsubConn = provider.SubscribeConnectivity(m.onConnectivity)

	m.refreshPendingCount(context.Background())
	go m.poll(pollInterval)

	return m
}

// Status returns the current snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Online:        m.provider.Online(),
		Syncing:       m.syncing,
		PendingCount:  m.pendingCount,
		LastSyncError: m.lastSyncError,
	}
}

// TriggerSync starts a manual drain, the affordance behind a retry button.
func (m *Monitor) TriggerSync() {
	go m.engine.Drain(context.Background())
}

// Close detaches the monitor from the engine and provider.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.stopPoll)
		m.unsubEvents()
		m.unsubConn()
	})
}

func (m *Monitor) onConnectivity(online bool) {
	m.logger.Info("connectivity changed", slog.Bool("online", online))
	if online {
		go m.engine.Drain(context.Background())
	}
}

func (m *Monitor) onEvent(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case EventSyncStart:
		m.syncing = true
	case EventSyncComplete:
		m.syncing = false
		m.pendingCount = ev.PendingCount
		m.lastSyncError = nil
	case EventSyncError:
		m.syncing = false
		m.lastSyncError = ev.Err
	case EventActionComplete:
		m.pendingCount = ev.PendingCount
	case EventActionError:
		m.pendingCount = ev.PendingCount
		m.lastSyncError = ev.Err
	}
}

func (m *Monitor) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopPoll:
			return
		case <-ticker.C:
			m.refreshPendingCount(context.Background())
		}
	}
}

func (m *Monitor) refreshPendingCount(ctx context.Context) {
	count, err := m.log.PendingCount(ctx)
	if err != nil {
		m.logger.LogError(ctx, err, "pending count poll failed")
		return
	}
	m.mu.Lock()
	m.pendingCount = count
	m.mu.Unlock()
}
