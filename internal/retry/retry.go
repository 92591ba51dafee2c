package retry

import (
	"context"
	"errors"
	"time"

	gateway "github.com/neocode24/dify-a2a-gateway"
)

// retryAfterFromError extracts the RetryAfter duration from a CategorizedError.
func retryAfterFromError(err error) time.Duration {
	var ce gateway.CategorizedError
	if errors.As(err, &ce) {
		return ce.RetryAfter()
	}
	return 0
}

// effectiveDelay returns the delay to use, honoring server's Retry-After if larger.
func effectiveDelay(configuredDelay time.Duration, err error) time.Duration {
	serverDelay := retryAfterFromError(err)
	if serverDelay > configuredDelay {
		return serverDelay
	}
	return configuredDelay
}

// Do executes the given function with retry logic.
// It respects context cancellation during backoff waits.
// Returns the result on success, or the last error if all attempts fail.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	return DoWithObserver(ctx, cfg, nil, fn)
}

// DoWithObserver is like Do but reports failed attempts, retries and
// exhaustion to obs. Pass nil to disable reporting.
func DoWithObserver[T any](ctx context.Context, cfg Config, obs Observer, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		retryable := IsTransient(err)

		emit(obs, Event{
			Type:        EventAttemptFailed,
			Attempt:     attempt + 1,
			MaxAttempts: attempts,
			Error:       err,
			Retryable:   retryable,
		})

		if !retryable {
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt < attempts-1 {
			delay := effectiveDelay(cfg.Delay(attempt), err)

			emit(obs, Event{
				Type:        EventRetrying,
				Attempt:     attempt + 1,
				MaxAttempts: attempts,
				Delay:       delay,
			})

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	emit(obs, Event{
		Type:        EventExhausted,
		Attempt:     attempts,
		MaxAttempts: attempts,
		Error:       lastErr,
	})

	return zero, lastErr
}
