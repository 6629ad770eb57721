package purchase

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSimulatedGateway_AlwaysSucceeds(t *testing.T) {
	gateway := NewSimulatedGateway(1)

	txn, err := gateway.Charge(context.Background(), "user-1234abc", "prod-9876xyz", 19.99)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !strings.HasPrefix(txn, "trans-") {
		t.Fatalf("unexpected transaction id: %s", txn)
	}
	if !strings.HasSuffix(txn, "-user-prod") {
		t.Fatalf("transaction id should carry user and product prefixes: %s", txn)
	}
}

func TestSimulatedGateway_AlwaysFails(t *testing.T) {
	gateway := NewSimulatedGateway(0)

	for i := 0; i < 20; i++ {
		if _, err := gateway.Charge(context.Background(), "user-1", "prod-1", 1); !errors.Is(err, ErrPaymentGatewayDown) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestSimulatedGateway_ClampsRate(t *testing.T) {
	gateway := NewSimulatedGateway(7.5)
	if _, err := gateway.Charge(context.Background(), "user-1", "prod-1", 1); err != nil {
		t.Fatalf("rate above 1 should behave as always-succeed: %v", err)
	}
}

func TestSimulatedGateway_RejectsNegativeAmount(t *testing.T) {
	gateway := NewSimulatedGateway(1)
	if _, err := gateway.Charge(context.Background(), "user-1", "prod-1", -5); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestSimulatedGateway_CanceledContext(t *testing.T) {
	gateway := NewSimulatedGateway(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := gateway.Charge(ctx, "user-1", "prod-1", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFailingGateway(t *testing.T) {
	if _, err := (FailingGateway{}).Charge(context.Background(), "user-1", "prod-1", 1); !errors.Is(err, ErrPaymentGatewayDown) {
		t.Fatalf("unexpected error: %v", err)
	}
}
