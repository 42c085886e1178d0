package runtime

import "time"

// maxShift keeps BaseDelay << (attempt-1) from overflowing time.Duration.
const maxShift = 30

// Backoff is the reconnection policy: retry k waits BaseDelay * 2^(k-1),
// and there are at most MaxAttempts retries.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the wait before retry attempt (1-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return b.BaseDelay << min(attempt-1, maxShift)
}

// Exhausted reports whether no retry is left after attempt retries.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}

// Schedule lists every delay the policy would use.
func (b Backoff) Schedule() []time.Duration {
	out := make([]time.Duration, 0, max(b.MaxAttempts, 0))
	for k := 1; k <= b.MaxAttempts; k++ {
		out = append(out, b.Delay(k))
	}
	return out
}
