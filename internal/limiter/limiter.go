// Package limiter throttles login attempts per identity over a
// trailing time window.
//
// An attempt recorded at t counts against the identity while now-t <= window.
// CheckAndRecord reserves a slot for the attempt in the same step that
// admits it, so concurrent attempts cannot all slip past the limit.  A
// blocked call records nothing.  Callers clear the identity with Reset
// after a successful login.
package limiter

import (
	"context"
	"time"
)

// Decision is the outcome of a Check or CheckAndRecord.
type Decision struct {
	Allowed    bool
	Count      int           // attempts inside the window, including a reserved one
	RetryAfter time.Duration // zero when Allowed
}

// Limiter is implemented by the in-process and Redis-backed limiters.
// Every operation on a single key is serialized.
type Limiter interface {
	Check(ctx context.Context, key string, now time.Time) (Decision, error)
	CheckAndRecord(ctx context.Context, key string, now time.Time) (Decision, error)
	RecordFailure(ctx context.Context, key string, now time.Time) error
	Reset(ctx context.Context, key string) error
}

// retryAfter returns how long until the oldest attempt leaves the window.
func retryAfter(oldest, now time.Time, window time.Duration) time.Duration {
	d := oldest.Add(window).Sub(now)
	if d < 0 {
		return 0
	}
	// the attempt is still counted at exactly oldest+window
	return d + time.Millisecond
}
