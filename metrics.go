package cartsync

import "time"

// MetricsCollector provides hooks for observability.
type MetricsCollector interface {
	// RecordDrainDuration records how long a drain pass took
	RecordDrainDuration(d time.Duration)

	// RecordActionOutcome records the terminal outcome of one action
	// (outcome is "complete", "conflict", "client_error" or "exhausted")
	RecordActionOutcome(actionType ActionType, outcome string)

	// RecordQueueDepth records the pending count after a pass
	RecordQueueDepth(n int)
}

// NoOpMetricsCollector is a stub implementation that discards metrics.
type NoOpMetricsCollector struct{}

func (*NoOpMetricsCollector) RecordDrainDuration(d time.Duration)                       {}
func (*NoOpMetricsCollector) RecordActionOutcome(actionType ActionType, outcome string) {}
func (*NoOpMetricsCollector) RecordQueueDepth(n int)                                    {}
