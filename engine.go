package cartsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// DefaultRetryCeiling is the number of transient failures an action may
// accumulate before it is dropped.
const DefaultRetryCeiling = 5

// DefaultActionTimeout bounds each network call inside the drain loop so a
// hung request cannot stall the single-flight drain indefinitely.
const DefaultActionTimeout = 15 * time.Second

// Options configures a sync engine. The zero value is usable; defaults are
// filled in by NewEngine.
type Options struct {
	// RetryCeiling is the maximum RetryCount before an action is dropped.
	RetryCeiling int

	// Backoff schedules the redrain delay after a transient failure.
	Backoff BackoffStrategy

	// ActionTimeout is the per-action deadline on transport calls.
	ActionTimeout time.Duration

	// Logger receives structured engine logs.
	Logger *logging.Logger

	// Metrics receives observability hooks (optional).
	Metrics MetricsCollector
}

// Engine is the single-flight processor that drains the pending action log
// against the remote API. Construct one per device at the composition root
// and inject it into consumers; it is safe for concurrent use.
type Engine struct {
	log       ActionLog
	meta      MetaStore
	transport Transport
	provider  ConnectivityProvider
	options   Options
	events    *eventBus
	logger    *logging.Logger

	mu         sync.Mutex
	draining   bool
	closed     bool
	retryTimer *time.Timer
}

// NewEngine creates a sync engine over the given action log, meta store,
// transport and connectivity provider.
func NewEngine(log ActionLog, meta MetaStore, transport Transport, provider ConnectivityProvider, opts *Options) *Engine {
	options := Options{}
	if opts != nil {
		options = *opts
	}
	if options.RetryCeiling <= 0 {
		options.RetryCeiling = DefaultRetryCeiling
	}
	if options.Backoff == nil {
		options.Backoff = DefaultBackoff()
	}
	if options.ActionTimeout <= 0 {
		options.ActionTimeout = DefaultActionTimeout
	}
	if options.Logger == nil {
		options.Logger = logging.Default()
	}
	if options.Metrics == nil {
		options.Metrics = &NoOpMetricsCollector{}
	}

	return &Engine{
		log:       log,
		meta:      meta,
		transport: transport,
		provider:  provider,
		options:   options,
		events:    newEventBus(),
		logger:    options.Logger.WithComponent("engine"),
	}
}

// Subscribe registers an event handler and returns an unsubscribe func.
func (e *Engine) Subscribe(handler EventHandler) func() {
	return e.events.subscribe(handler)
}

// PendingCount reports how many actions are waiting in the log.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.log.PendingCount(ctx)
}

// Enqueue appends a new pending action to the log and, when currently
// online, requests an asynchronous drain. The only guarantee to the caller
// is that the action has been durably queued.
func (e *Engine) Enqueue(ctx context.Context, actionType ActionType, endpoint, method string, payload json.RawMessage) (*PendingAction, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("sync engine is closed")
	}
	e.mu.Unlock()

	action := NewPendingAction(actionType, endpoint, method, payload)
	if err := e.log.Append(ctx, action); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpEnqueue, err)
	}

	e.logger.DebugContext(ctx, "action queued",
		slog.String("action_id", action.ID),
		slog.String("action_type", string(action.Type)),
	)

	if e.provider.Online() {
		go e.Drain(context.Background())
	}
	return action, nil
}

// Drain walks the pending action log in FIFO order, executing each action
// against the remote API and resolving it by outcome. Only one pass runs at
// a time; a call while a pass is in flight is a no-op.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.Lock()
	if e.closed || e.draining {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	start := time.Now()
	e.events.emit(Event{Type: EventSyncStart})

	actions, err := e.log.Pending(ctx)
	if err != nil {
		passErr := syncErrors.NewStorageError(syncErrors.OpDrain, err)
		e.logger.LogError(ctx, passErr, "drain pass failed to load queue")
		e.events.emit(Event{Type: EventSyncError, Err: passErr})
		return passErr
	}

	interrupted := false
	for i := range actions {
		action := &actions[i]

		// Connectivity lost since the pass began: stop here, the rest of
		// the queue stays exactly as it was.
		if !e.provider.Online() {
			interrupted = true
			break
		}

		execErr := e.execute(ctx, action)
		if execErr == nil {
			e.resolve(ctx, action, EventActionComplete, nil, "complete")
			continue
		}

		switch syncErrors.KindOf(execErr) {
		case syncErrors.KindNetwork:
			// No response at all: assume connectivity just dropped and
			// pause the pass rather than burning retries on every
			// queued action.
			e.logger.LogError(ctx, execErr, "transport unreachable, pausing drain",
				slog.String("action_id", action.ID))
			interrupted = true

		case syncErrors.KindConflict:
			// Server state is authoritative; the action is dropped
			// without touching its retry count.
			e.resolve(ctx, action, EventActionError, execErr, "conflict")

		case syncErrors.KindClient:
			// Retrying can never succeed.
			e.resolve(ctx, action, EventActionError, execErr, "client_error")

		default: // KindServer and anything tagged retryable
			interrupted = e.reschedule(ctx, action, execErr)
		}

		if interrupted {
			break
		}
	}

	count, countErr := e.log.PendingCount(ctx)
	if countErr != nil {
		e.logger.LogError(ctx, countErr, "pending count unavailable after pass")
	}
	e.events.emit(Event{Type: EventSyncComplete, PendingCount: count})
	e.options.Metrics.RecordDrainDuration(time.Since(start))
	e.options.Metrics.RecordQueueDepth(count)

	if !interrupted {
		e.touchMeta(ctx)
	}
	return nil
}

// execute runs one action through the transport under the per-action
// deadline.
func (e *Engine) execute(ctx context.Context, action *PendingAction) error {
	if e.options.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.options.ActionTimeout)
		defer cancel()
	}
	return e.transport.Execute(ctx, action)
}

// resolve removes an action from the log and emits its terminal event.
func (e *Engine) resolve(ctx context.Context, action *PendingAction, eventType EventType, cause error, outcome string) {
	if err := e.log.Remove(ctx, action.ID); err != nil {
		// The action stays queued and will be re-executed next pass; the
		// server treats replays of a confirmed mutation as conflicts.
		e.logger.LogError(ctx, err, "failed to remove resolved action",
			slog.String("action_id", action.ID))
	}

	count, _ := e.log.PendingCount(ctx)
	e.events.emit(Event{
		Type:         eventType,
		ActionID:     action.ID,
		ActionType:   action.Type,
		Err:          cause,
		PendingCount: count,
	})
	e.options.Metrics.RecordActionOutcome(action.Type, outcome)
}

// reschedule records a transient failure on the action. Below the retry
// ceiling the action stays queued and a redrain is scheduled after the
// backoff delay; past the ceiling the action is dropped. Either way the
// current pass stops so a later action cannot overtake an earlier retained
// one. Returns true when the pass must stop.
func (e *Engine) reschedule(ctx context.Context, action *PendingAction, cause error) bool {
	action.RetryCount++
	action.LastError = cause.Error()

	if action.RetryCount > e.options.RetryCeiling {
		exhausted := fmt.Errorf("max retries exceeded: %w", cause)
		e.resolve(ctx, action, EventActionError, exhausted, "exhausted")
		// The head of the queue is gone; the pass can keep going.
		return false
	}

	if err := e.log.Update(ctx, action); err != nil {
		e.logger.LogError(ctx, err, "failed to persist retry state",
			slog.String("action_id", action.ID))
	}

	delay := e.options.Backoff.NextDelay(action.RetryCount)
	e.logger.InfoContext(ctx, "action rescheduled",
		slog.String("action_id", action.ID),
		slog.Int("retry_count", action.RetryCount),
		slog.Duration("delay", delay),
	)
	e.scheduleRedrain(delay)
	return true
}

// scheduleRedrain arms a one-shot timer that triggers another drain. An
// already-armed timer is left alone; the earliest pending drain covers the
// whole queue anyway.
func (e *Engine) scheduleRedrain(delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.retryTimer != nil {
		return
	}
	e.retryTimer = time.AfterFunc(delay, func() {
		e.mu.Lock()
		e.retryTimer = nil
		closed := e.closed
		e.mu.Unlock()
		if !closed {
			e.Drain(context.Background())
		}
	})
}

// touchMeta records the advisory bookkeeping after an uninterrupted pass.
// The device ID is minted on first use and kept stable afterwards.
func (e *Engine) touchMeta(ctx context.Context) {
	meta, err := e.meta.LoadMeta(ctx)
	if err != nil || meta == nil {
		meta = &SyncMeta{}
	}
	if meta.DeviceID == "" {
		meta.DeviceID = uuid.NewString()
	}
	meta.LastSyncAt = time.Now().UnixMilli()
	if err := e.meta.SaveMeta(ctx, meta); err != nil {
		e.logger.LogError(ctx, err, "failed to save sync meta")
	}
}

// Close stops any scheduled redrain. It does not close the store or the
// transport; the composition root owns those.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	return nil
}
