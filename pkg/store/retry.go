package store

import (
	"context"
	"fmt"
	"time"
)

// AppendWithRetry retries a failed append with bounded exponential backoff.
// Exhausted retries surface as an error for the operational log, never to
// the sender: by the time persistence runs, live delivery already happened.
func AppendWithRetry(ctx context.Context, a Appender, rec Record, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = a.Append(ctx, rec); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << i):
		}
	}
	return fmt.Errorf("persistence failed after %d attempts: %w", attempts, err)
}
