package pipeline

import (
	"context"
	"errors"
	"time"

	"publishScope/internal/config"
	"publishScope/internal/model"
)

// RetryPolicy bounds how often a stage is re-attempted.
type RetryPolicy struct {
	Attempts   int
	Delay      time.Duration
	Multiplier float64
	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

// DefaultRetryPolicy is three attempts with a fixed delay.
func DefaultRetryPolicy(delay time.Duration) RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: delay, Multiplier: 1, Retryable: Retryable}
}

// Retryable reports whether err is a transient upstream or storage failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, model.ErrSchemaConflict) {
		return false
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return false
	}
	return errors.Is(err, model.ErrUpstreamUnavailable) || errors.Is(err, model.ErrStorageUnavailable)
}

// Do calls fn until it succeeds, the error is not retryable, or attempts run out.
// onRetry is called before each sleep.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Delay
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * multiplier)
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
