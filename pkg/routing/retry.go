package routing

import (
	"context"
	"time"
)

// backoffDelay returns the exponential delay before the given retry
// attempt. Attempt 1 waits 2s, attempt 2 waits 4s, and so on.
func backoffDelay(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// waitBackoff sleeps for the attempt's backoff delay, returning early
// with the context's error if it is cancelled first.
func waitBackoff(ctx context.Context, attempt int) error {
	select {
	case <-time.After(backoffDelay(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
