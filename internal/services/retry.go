// internal/services/retry.go
package services

import (
	"context"
	"time"
)

// retryWithBackoff runs fn up to maxAttempts times, doubling the delay
// between attempts (base, 2*base, 4*base, ...). Only transient errors
// are retried; terminal errors and context cancellation return
// immediately. The delay honors ctx so shutdown is not held up by a
// sleeping retry loop.
func retryWithBackoff(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	delay := base
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
