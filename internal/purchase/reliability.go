package purchase

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the payment breaker refuses a call.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryPolicy drives the retry loop around compensating releases. Charges
// are never retried; only the inventory credit goes through this.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      func(time.Duration) time.Duration
	Sleep       func(context.Context, time.Duration) error
	ShouldRetry func(error) bool
}

// Do calls fn until it succeeds, the attempts run out, or the error is
// classified as permanent.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for try := 0; try < p.attempts(); try++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) || try == p.attempts()-1 {
			return lastErr
		}
		if err := p.pause(ctx, try); err != nil {
			return err
		}
	}
	return lastErr
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(err error) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrCircuitOpen)
}

// pause sleeps for the backoff of the given zero-based try: BaseDelay doubled
// per try, capped at MaxDelay, then jittered.
func (p RetryPolicy) pause(ctx context.Context, try int) error {
	delay := p.BaseDelay << try
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter != nil {
		delay = p.Jitter(delay)
	} else {
		delay = halfJitter(delay)
	}
	if delay <= 0 {
		return nil
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	return waitFor(ctx, delay)
}

// CircuitBreakerConfig configures the payment circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
	Now          func() time.Time
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerProbing
)

// CircuitBreaker trips after consecutive gateway failures and lets a single
// probe through once the cooldown has passed.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	clock     func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	inProbe  bool
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	b := &CircuitBreaker{
		threshold: cfg.MaxFailures,
		cooldown:  cfg.ResetTimeout,
		clock:     cfg.Now,
	}
	if b.threshold < 1 {
		b.threshold = 1
	}
	if b.cooldown <= 0 {
		b.cooldown = 2 * time.Second
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	return b
}

// Execute runs fn unless the breaker is open, then records the outcome.
func (b *CircuitBreaker) Execute(fn func() error) error {
	if b == nil {
		return fn()
	}
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err)
	return err
}

func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.clock().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		// Cooldown elapsed, this call becomes the probe.
		b.state = breakerProbing
		b.inProbe = true
	case breakerProbing:
		if b.inProbe {
			return ErrCircuitOpen
		}
		b.inProbe = true
	}
	return nil
}

func (b *CircuitBreaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	probe := b.state == breakerProbing
	if probe {
		b.inProbe = false
	}

	if err == nil {
		b.state = breakerClosed
		b.failures = 0
		return
	}

	if probe {
		b.state = breakerOpen
		b.openedAt = b.clock()
		b.failures = 0
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = breakerOpen
		b.openedAt = b.clock()
	}
}

// RateLimiter is a token bucket refilled one token per interval.
type RateLimiter struct {
	interval time.Duration
	burst    int
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	mu     sync.Mutex
	tokens int
	filled time.Time
}

func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	r := &RateLimiter{
		interval: interval,
		burst:    burst,
		now:      time.Now,
		sleep:    waitFor,
		tokens:   burst,
	}
	r.filled = r.now()
	return r
}

// Wait takes a token, sleeping until one refills if the bucket is empty.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil || r.interval <= 0 || r.burst <= 0 {
		return ctx.Err()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.mu.Lock()
		now := r.now()
		if ticks := int(now.Sub(r.filled) / r.interval); ticks > 0 {
			r.tokens += ticks
			if r.tokens > r.burst {
				r.tokens = r.burst
			}
			r.filled = r.filled.Add(time.Duration(ticks) * r.interval)
		}
		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := r.interval - now.Sub(r.filled)
		r.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// GuardedGateway wraps a PaymentGateway with a rate limiter, a per-call
// timeout, and a circuit breaker. A slow charge counts as a gateway failure
// and fails fast; the charge itself is never retried.
type GuardedGateway struct {
	base    PaymentGateway
	limiter *RateLimiter
	breaker *CircuitBreaker
	timeout time.Duration
}

func NewGuardedGateway(base PaymentGateway, limiter *RateLimiter, breaker *CircuitBreaker, timeout time.Duration) *GuardedGateway {
	return &GuardedGateway{
		base:    base,
		limiter: limiter,
		breaker: breaker,
		timeout: timeout,
	}
}

func (g *GuardedGateway) Charge(ctx context.Context, userID, productID string, amount float64) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var txnID string
	charge := func() error {
		var err error
		txnID, err = g.base.Charge(callCtx, userID, productID, amount)
		return err
	}

	var chargeErr error
	if g.breaker != nil {
		chargeErr = g.breaker.Execute(charge)
	} else {
		chargeErr = charge()
	}
	if chargeErr != nil {
		return "", chargeErr
	}
	return txnID, nil
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// halfJitter keeps at least half the delay and randomizes the rest.
func halfJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
