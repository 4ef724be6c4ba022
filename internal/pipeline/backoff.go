package pipeline

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"
)

// Default backoff bounds used when configuration leaves them unset.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second
)

// BackoffPolicy produces exponentially growing, jittered waits between
// attempts: half of the capped exponential delay plus a random share of the
// other half.
type BackoffPolicy struct {
	base time.Duration
	max  time.Duration
}

// NewBackoffPolicy builds a policy, falling back to defaults for
// non-positive bounds.
func NewBackoffPolicy(base, maxDelay time.Duration) *BackoffPolicy {
	if base <= 0 {
		base = DefaultBackoffInitial
	}
	if maxDelay <= 0 {
		maxDelay = DefaultBackoffMax
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &BackoffPolicy{base: base, max: maxDelay}
}

// Backoff returns the wait before retry number attempt (zero-based).
func (p *BackoffPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.base) * math.Pow(2, float64(max(attempt, 0)))
	if delay > float64(p.max) {
		delay = float64(p.max)
	}
	half := time.Duration(delay / 2)
	return half + jitter(half)
}

// DelayType adapts the policy to retry-go.
func (p *BackoffPolicy) DelayType() retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		return p.Backoff(int(n))
	}
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

// politeDelay picks a uniformly random wait in [lo, hi].
func politeDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return max(lo, 0)
	}
	return lo + rand.N(hi-lo+1)
}

// pause sleeps for d or until ctx is done, whichever comes first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
