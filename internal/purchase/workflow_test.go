package purchase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
)

type spySources struct {
	users        map[string]catalog.User
	products     map[string]catalog.Product
	userLoads    []string
	productLoads []string
}

func (s *spySources) User(_ context.Context, id string) (catalog.User, bool, error) {
	s.userLoads = append(s.userLoads, id)
	user, ok := s.users[id]
	return user, ok, nil
}

func (s *spySources) Product(_ context.Context, id string) (catalog.Product, bool, error) {
	s.productLoads = append(s.productLoads, id)
	product, ok := s.products[id]
	return product, ok, nil
}

type spyAppender struct {
	orders []catalog.Order
	err    error
}

func (s *spyAppender) Append(_ context.Context, order catalog.Order) error {
	if s.err != nil {
		return s.err
	}
	s.orders = append(s.orders, order)
	return nil
}

type spyNotifier struct {
	messages []string
	err      error
}

func (s *spyNotifier) Notify(_ context.Context, _, message string) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, message)
	return nil
}

func newTestWorkflow(sources *spySources, gateway PaymentGateway, appender *spyAppender, notifier *spyNotifier) *Workflow {
	return NewWorkflow(sources, sources, gateway, appender, notifier, func(string, ...any) {})
}

func fixtureSources() *spySources {
	return &spySources{
		users: map[string]catalog.User{
			"user-1": {ID: "user-1", Name: "Ada Fields"},
		},
		products: map[string]catalog.Product{
			"prod-1": {ID: "prod-1", Name: "Widget", Price: 19.99, InStock: 3},
		},
	}
}

func TestPurchase_Succeeds(t *testing.T) {
	sources := fixtureSources()
	appender := &spyAppender{}
	notifier := &spyNotifier{}
	workflow := newTestWorkflow(sources, NewSimulatedGateway(1), appender, notifier)

	estimate := catalog.DeliveryEstimate{
		BestCase: catalog.EstimateWindow{
			DurationHours:   24,
			DeliveryDate:    time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			ConfidenceLevel: catalog.ConfidenceHigh,
		},
	}

	order, err := workflow.Purchase(context.Background(), "user-1", "prod-1", estimate)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if !strings.HasPrefix(order.ID, "order-") {
		t.Fatalf("unexpected order id: %s", order.ID)
	}
	if order.Status != catalog.OrderStatusProcessed {
		t.Fatalf("unexpected status: %s", order.Status)
	}
	if order.ProductName != "Widget" || order.Price != 19.99 {
		t.Fatalf("order did not copy product fields: %+v", order)
	}
	if order.TransactionID == "" {
		t.Fatalf("expected transaction id on order")
	}
	if len(appender.orders) != 1 {
		t.Fatalf("expected 1 committed order, got %d", len(appender.orders))
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "Widget") {
		t.Fatalf("unexpected notifications: %v", notifier.messages)
	}
}

func TestPurchase_UnknownUser(t *testing.T) {
	sources := fixtureSources()
	workflow := newTestWorkflow(sources, NewSimulatedGateway(1), &spyAppender{}, &spyNotifier{})

	_, err := workflow.Purchase(context.Background(), "user-404", "prod-1", catalog.DeliveryEstimate{})
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPurchase_UnknownProduct(t *testing.T) {
	sources := fixtureSources()
	workflow := newTestWorkflow(sources, NewSimulatedGateway(1), &spyAppender{}, &spyNotifier{})

	_, err := workflow.Purchase(context.Background(), "user-1", "prod-404", catalog.DeliveryEstimate{})
	if !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Both identifiers are validated regardless of which one is bad, so a
// swapped argument order cannot mask an unknown product behind a user check.
func TestPurchase_ValidatesBothIdentifiers(t *testing.T) {
	sources := fixtureSources()
	workflow := newTestWorkflow(sources, NewSimulatedGateway(1), &spyAppender{}, &spyNotifier{})

	_, err := workflow.Purchase(context.Background(), "user-404", "prod-404", catalog.DeliveryEstimate{})
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources.userLoads) != 1 || len(sources.productLoads) != 1 {
		t.Fatalf("expected both lookups to run: users=%v products=%v", sources.userLoads, sources.productLoads)
	}
}

func TestPurchase_PaymentFailure(t *testing.T) {
	sources := fixtureSources()
	appender := &spyAppender{}
	notifier := &spyNotifier{}
	workflow := newTestWorkflow(sources, FailingGateway{}, appender, notifier)

	_, err := workflow.Purchase(context.Background(), "user-1", "prod-1", catalog.DeliveryEstimate{})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(appender.orders) != 0 {
		t.Fatalf("failed payment must not commit an order")
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("failed payment must not notify")
	}
}

func TestPurchase_AppendFailureSurfaces(t *testing.T) {
	sources := fixtureSources()
	appender := &spyAppender{err: errors.New("ledger down")}
	workflow := newTestWorkflow(sources, NewSimulatedGateway(1), appender, &spyNotifier{})

	if _, err := workflow.Purchase(context.Background(), "user-1", "prod-1", catalog.DeliveryEstimate{}); err == nil {
		t.Fatalf("expected append error to surface")
	}
}

func TestPurchase_NotifyFailureDoesNotGate(t *testing.T) {
	sources := fixtureSources()
	appender := &spyAppender{}
	notifier := &spyNotifier{err: errors.New("hub down")}
	workflow := newTestWorkflow(sources, NewSimulatedGateway(1), appender, notifier)

	if _, err := workflow.Purchase(context.Background(), "user-1", "prod-1", catalog.DeliveryEstimate{}); err != nil {
		t.Fatalf("notification failure must not fail the purchase: %v", err)
	}
	if len(appender.orders) != 1 {
		t.Fatalf("expected committed order")
	}
}
