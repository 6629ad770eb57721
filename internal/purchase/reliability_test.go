package purchase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }
func noJitter(d time.Duration) time.Duration       { return d }

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	policy := RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		Sleep:       noSleep,
		Jitter:      noJitter,
	}

	err := policy.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	policy := RetryPolicy{MaxAttempts: 3, Sleep: noSleep, Jitter: noJitter}
	boom := errors.New("boom")

	err := policy.Do(context.Background(), func() error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryPolicy_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	attempts := 0
	policy := RetryPolicy{
		MaxAttempts: 5,
		Sleep:       noSleep,
		Jitter:      noJitter,
		ShouldRetry: func(err error) bool { return false },
	}

	_ = policy.Do(context.Background(), func() error {
		attempts++
		return errors.New("fatal")
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestRetryPolicy_DefaultSkipsCircuitOpen(t *testing.T) {
	t.Parallel()

	attempts := 0
	policy := RetryPolicy{MaxAttempts: 5, Sleep: noSleep, Jitter: noJitter}

	_ = policy.Do(context.Background(), func() error {
		attempts++
		return ErrCircuitOpen
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if err := breaker.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := breaker.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Now:          func() time.Time { return current },
	})

	if err := breaker.Execute(func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected failure")
	}
	if err := breaker.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	current = current.Add(2 * time.Second)
	if err := breaker.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should pass: %v", err)
	}
	if err := breaker.Execute(func() error { return nil }); err != nil {
		t.Fatalf("circuit should be closed again: %v", err)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Now:          func() time.Time { return current },
	})

	_ = breaker.Execute(func() error { return errors.New("boom") })
	current = current.Add(2 * time.Second)
	_ = breaker.Execute(func() error { return errors.New("still down") })

	if err := breaker.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}

func TestRateLimiter_BurstThenBlocks(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	slept := 0
	limiter := NewRateLimiter(time.Second, 2)
	limiter.now = func() time.Time { return current }
	limiter.sleep = func(_ context.Context, d time.Duration) error {
		slept++
		current = current.Add(d)
		return nil
	}

	for i := 0; i < 2; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("Wait within burst: %v", err)
		}
	}
	if slept != 0 {
		t.Fatalf("burst should not sleep, slept %d times", slept)
	}

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait after burst: %v", err)
	}
	if slept == 0 {
		t.Fatalf("expected a sleep once the burst is exhausted")
	}
}

func TestRateLimiter_CanceledContext(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimiter(time.Second, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGuardedGateway_PassesThrough(t *testing.T) {
	t.Parallel()

	gateway := NewGuardedGateway(NewSimulatedGateway(1), nil, nil, 0)
	txn, err := gateway.Charge(context.Background(), "user-1", "prod-1", 9.99)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if txn == "" {
		t.Fatalf("expected transaction id")
	}
}

func TestGuardedGateway_BreakerShortCircuits(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	gateway := NewGuardedGateway(FailingGateway{}, nil, breaker, 0)

	if _, err := gateway.Charge(context.Background(), "user-1", "prod-1", 1); !errors.Is(err, ErrPaymentGatewayDown) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gateway.Charge(context.Background(), "user-1", "prod-1", 1); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

type slowGateway struct{}

func (slowGateway) Charge(ctx context.Context, _, _ string, _ float64) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Minute):
		return "trans-slow", nil
	}
}

func TestGuardedGateway_TimeoutFailsFast(t *testing.T) {
	t.Parallel()

	gateway := NewGuardedGateway(slowGateway{}, nil, nil, 10*time.Millisecond)
	if _, err := gateway.Charge(context.Background(), "user-1", "prod-1", 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v", err)
	}
}
