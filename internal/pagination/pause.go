package pagination

import (
	"context"
	"time"
)

// Pause sleeps for delay or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was interrupted.
func Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
