// Package simple contains the permissive limiter used when rate limiting is disabled.
package simple

import (
	"context"
	"fmt"
	"time"
)

// Limiter never delays a request. It implements novel.Limiter.
type Limiter struct{}

// New creates a new Limiter.
func New() *Limiter {
	return &Limiter{}
}

// Wait returns immediately unless ctx is already done.
func (Limiter) Wait(ctx context.Context, _ string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}
	return 0, nil
}
