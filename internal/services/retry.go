package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/nebulasphere007-cell/MockZen/internal/store"
)

const conflictBackoff = 10 * time.Millisecond

// retryConflicts runs fn until it returns something other than
// store.ErrVersionConflict, waiting a jittered, linearly growing interval
// between attempts. Exhaustion surfaces as a RetryAfterError.
func retryConflicts(ctx context.Context, maxRetries int, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		if attempt >= maxRetries {
			return &RetryAfterError{Err: ErrTransientConflict, After: conflictRetryAfter}
		}

		wait := time.Duration(attempt)*conflictBackoff + rand.N(conflictBackoff)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
