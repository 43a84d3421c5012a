package usecase

import (
	"context"
	"time"

	"presenter-video-pipeline/internal/domain"
)

// RetryPolicy retries an operation on a fixed backoff schedule when the
// error matches Retryable. Both submission stages (avatar render and
// composite) share the same policy instance shape.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
	Retryable   func(error) bool

	// sleep is swapped out by tests; nil means a context-aware real sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSubmissionRetryPolicy is the shared policy for rate-limited provider
// submissions: up to 3 attempts with 2s/4s/8s delays, retrying only
// rate/throttle-classified errors.
func NewSubmissionRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		Retryable:   domain.IsRateLimited,
	}
}

// Do runs fn until it succeeds, fails non-retryably, exhausts attempts,
// or the context ends. The last error is returned as-is.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := p.wait(ctx, p.delayFor(attempt-1)); serr != nil {
				return serr
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
	}
	return err
}

func (p RetryPolicy) delayFor(i int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
