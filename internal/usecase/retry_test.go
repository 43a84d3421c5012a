package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"presenter-video-pipeline/internal/domain"
)

func rateLimited() error {
	return &domain.ProviderError{Provider: "avatar", Status: 429, Body: "too many requests"}
}

func TestRetryBacksOffOnRateLimit(t *testing.T) {
	p := NewSubmissionRetryPolicy()
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return rateLimited()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("slept %d times, want 2: %v", len(slept), slept)
	}
	if slept[0] < 2*time.Second || slept[1] < 4*time.Second {
		t.Fatalf("backoff too short: %v", slept)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	p := NewSubmissionRetryPolicy()
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return rateLimited()
	})
	if !domain.IsRateLimited(err) {
		t.Fatalf("want the last rate-limit error back, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryDoesNotRetryOtherErrors(t *testing.T) {
	p := NewSubmissionRetryPolicy()
	p.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("must not sleep for a non-retryable error")
		return nil
	}

	boom := errors.New("connection refused")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	p := NewSubmissionRetryPolicy()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return rateLimited()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
