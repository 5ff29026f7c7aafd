package llm

import (
	"context"
	"log"
	"time"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

// retryBaseDelay is the first backoff step; tests shorten it.
var retryBaseDelay = time.Second

const retryMaxDelay = 30 * time.Second

// RetryCall retries fn with exponential backoff.
// maxRetries is the number of retry attempts (not counting the initial call).
// Backoff schedule: 1s, 2s, 4s, etc.
// Only retries if errors.IsRetryable returns true for the error.
func RetryCall[T any](ctx context.Context, maxRetries int, logger *log.Logger, fn func() (T, error)) (T, error) {
	var zero T

	result, err := fn()
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if !perrors.IsRetryable(err) {
			return zero, err
		}

		// Check context before sleeping
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		backoff := perrors.CalculateBackoff(retryBaseDelay, attempt, retryMaxDelay)
		if logger != nil {
			logger.Printf("⚠ LLM call failed: %v, retrying in %v (attempt %d/%d)", err, backoff, attempt+1, maxRetries)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}

		result, err = fn()
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
