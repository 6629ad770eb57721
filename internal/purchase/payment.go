package purchase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// PaymentGateway charges a user for a product. Implementations are injected
// so tests can force deterministic outcomes.
type PaymentGateway interface {
	Charge(ctx context.Context, userID, productID string, amount float64) (string, error)
}

// ErrPaymentGatewayDown signals the simulated gateway rejected the charge.
var ErrPaymentGatewayDown = errors.New("payment gateway is down")

// SimulatedGateway succeeds with a configurable probability. The reference
// behavior charges successfully half the time.
type SimulatedGateway struct {
	mu          sync.Mutex
	successRate float64
	rng         *rand.Rand
	now         func() time.Time
}

// NewSimulatedGateway constructs a gateway succeeding with the given
// probability, clamped to [0, 1].
func NewSimulatedGateway(successRate float64) *SimulatedGateway {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &SimulatedGateway{
		successRate: successRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
}

// Charge rolls the dice and returns a transaction id on success.
func (g *SimulatedGateway) Charge(ctx context.Context, userID, productID string, amount float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amount < 0 {
		return "", fmt.Errorf("invalid charge amount %.2f", amount)
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	now := g.now()
	g.mu.Unlock()

	if roll >= g.successRate {
		return "", ErrPaymentGatewayDown
	}

	return transactionID(now, userID, productID), nil
}

// FailingGateway always fails; it exists to exercise the compensation path.
type FailingGateway struct{}

func (FailingGateway) Charge(ctx context.Context, userID, productID string, amount float64) (string, error) {
	return "", ErrPaymentGatewayDown
}

func transactionID(now time.Time, userID, productID string) string {
	return fmt.Sprintf("trans-%d-%s-%s", now.UnixMilli(), head(userID, 4), head(productID, 4))
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
