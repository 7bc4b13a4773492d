package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zkgrants/aggregator/log"
)

// ErrRetriesExhausted is returned when every attempt of a RetryHandler failed
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryHandler runs a function until it succeeds or MaxAttempts are spent,
// sleeping Delay between attempts
type RetryHandler struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *log.Logger
}

// Do calls fn up to MaxAttempts times. The returned error wraps
// ErrRetriesExhausted and the last error of fn.
func (h RetryHandler) Do(ctx context.Context, name string, fn func(ctx context.Context, attempt int) error) error {
	attempts := h.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := h.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(ctx, attempt); lastErr == nil {
			return nil
		}
		logger.Warnf("%s failed (attempt %d/%d): %v", name, attempt, attempts, lastErr)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		case <-time.After(h.Delay):
		}
	}

	return fmt.Errorf("%s failed %d times: %w: %w", name, attempts, ErrRetriesExhausted, lastErr)
}
