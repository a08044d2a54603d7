package utils

import (
	"context"
	"time"
)

// ContextSleep waits for d and reports false if ctx was cancelled first.
func ContextSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
