package utils

import (
	"context"
	"time"
)

// WaitFor blocks for d or until ctx is done, whichever happens first. A
// non-positive d returns at once.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// Backoff doubles base for every attempt after the first and caps the result
// at limit.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= limit {
			break
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}
