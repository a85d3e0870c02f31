package cartsync

import "time"

// BackoffStrategy decides how long to wait before redraining after a
// transient failure.
type BackoffStrategy interface {
	// NextDelay returns the delay after the given retry count (1-based:
	// the first failed attempt asks with retryCount == 1).
	NextDelay(retryCount int) time.Duration
}

// TableBackoff walks a fixed delay table, clamping to the last entry once
// the retry count runs past the table length.
type TableBackoff struct {
	Delays []time.Duration
}

// DefaultBackoff is the drain schedule: 1s, 2s, 5s, 10s, 30s, then 30s.
func DefaultBackoff() *TableBackoff {
	return &TableBackoff{Delays: []time.Duration{
		1 * time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		30 * time.Second,
	}}
}

func (tb *TableBackoff) NextDelay(retryCount int) time.Duration {
	if len(tb.Delays) == 0 {
		return 0
	}
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(tb.Delays) {
		idx = len(tb.Delays) - 1
	}
	return tb.Delays[idx]
}
