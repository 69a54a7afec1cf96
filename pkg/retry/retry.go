// Package retry holds the exponential backoff helper shared by the probe
// family and the alert pipeline, so the two retry sequences named in
// spec.md (probe network retries, alert delivery retries) use one
// implementation.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Do calls fn up to maxAttempts times, sleeping an exponentially increasing
// delay between attempts starting at baseDelay. It returns nil on the first
// success, or the last error wrapped with the attempt count. Sleeps respect
// ctx cancellation.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if attempt < maxAttempts-1 {
			delay := baseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
