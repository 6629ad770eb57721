package saga

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/docstore"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/inventory"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/observability"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/orders"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/purchase"
)

func quietLog(string, ...any) {}

func newInventoryFixture(t *testing.T, stock int) (*Participant, *inventory.Ledger, *catalog.ProductStore) {
	t.Helper()

	store := catalog.NewProductStore(docstore.NewMemoryStore())
	if err := store.SaveProduct(context.Background(), catalog.Product{
		ID: "prod-1", Name: "Widget", Price: 19.99, InStock: stock,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	ledger := inventory.NewLedger(store)
	comp := NewCompensationHandler(ledger, NewMemoryCompensationLog(), purchase.RetryPolicy{MaxAttempts: 1}, quietLog)
	participant := NewInventoryParticipant(ledger, comp, observability.NewMetrics(), quietLog)
	return participant, ledger, store
}

func execute(t *testing.T, p *Participant, id string, input string) Result {
	t.Helper()
	return p.Execute(context.Background(), Task{
		ID:        id,
		AttemptID: "attempt-1",
		StepID:    id,
		Input:     json.RawMessage(input),
	})
}

func TestInventoryParticipant_Registration(t *testing.T) {
	participant, _, _ := newInventoryFixture(t, 3)

	reg := participant.Registration()
	if reg.Name != "inventory-service" {
		t.Fatalf("unexpected name: %s", reg.Name)
	}
	if !reg.Revertible || !participant.Revertible() {
		t.Fatalf("inventory participant must be revertible")
	}
}

func TestInventoryParticipant_CheckAvailability(t *testing.T) {
	participant, _, _ := newInventoryFixture(t, 3)

	result := execute(t, participant, "task-1", `{"action":"checkAvailability","productId":"prod-1"}`)
	if !result.Success || result.Status != inventory.StatusAvailable {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.TaskID != "task-1" {
		t.Fatalf("result not stamped with task id: %s", result.TaskID)
	}
}

func TestInventoryParticipant_ReserveThenRelease(t *testing.T) {
	participant, _, store := newInventoryFixture(t, 3)

	result := execute(t, participant, "task-1", `{"action":"reserveProduct","productId":"prod-1","quantity":1}`)
	if !result.Success || result.Status != inventory.StatusReserved {
		t.Fatalf("unexpected reserve result: %+v", result)
	}

	result = execute(t, participant, "task-2", `{"action":"releaseProduct","productId":"prod-1","quantity":1}`)
	if !result.Success || result.Status != inventory.StatusReleased {
		t.Fatalf("unexpected release result: %+v", result)
	}

	product, _, err := store.Product(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("load product: %v", err)
	}
	if product.InStock != 3 {
		t.Fatalf("stock = %d, want 3", product.InStock)
	}
}

func TestInventoryParticipant_ReserveOutOfStock(t *testing.T) {
	participant, _, _ := newInventoryFixture(t, 1)

	result := execute(t, participant, "task-1", `{"action":"reserveProduct","productId":"prod-1","quantity":5}`)
	if result.Success {
		t.Fatalf("expected failure result")
	}
	if result.Status != inventory.StatusOutOfStock {
		t.Fatalf("unexpected status: %s", result.Status)
	}
}

func TestInventoryParticipant_UnknownProduct(t *testing.T) {
	participant, _, _ := newInventoryFixture(t, 1)

	result := execute(t, participant, "task-1", `{"action":"reserveProduct","productId":"prod-404"}`)
	if result.Success || result.Status != inventory.StatusUnknownProduct {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInventoryParticipant_UnknownAction(t *testing.T) {
	participant, _, _ := newInventoryFixture(t, 1)

	result := execute(t, participant, "task-1", `{"action":"teleportProduct","productId":"prod-1"}`)
	if result.Success || result.Status != "error" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInventoryParticipant_DefaultsQuantity(t *testing.T) {
	participant, ledger, _ := newInventoryFixture(t, 3)

	result := execute(t, participant, "task-1", `{"action":"reserveProduct","productId":"prod-1"}`)
	if !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
	got, err := ledger.Outstanding(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("Outstanding: %v", err)
	}
	if got != 1 {
		t.Fatalf("outstanding = %d, want 1", got)
	}
}

func TestInventoryParticipant_RevertReleasesStock(t *testing.T) {
	participant, _, store := newInventoryFixture(t, 3)

	task := Task{ID: "task-1", AttemptID: "attempt-1", StepID: "step-1",
		Input: json.RawMessage(`{"action":"reserveProduct","productId":"prod-1","quantity":1}`)}
	recorded := participant.Execute(context.Background(), task)
	if !recorded.Success {
		t.Fatalf("reserve failed: %+v", recorded)
	}

	if err := participant.Revert(context.Background(), task, recorded); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	product, _, err := store.Product(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("load product: %v", err)
	}
	if product.InStock != 3 {
		t.Fatalf("stock after revert = %d, want 3", product.InStock)
	}

	// Redelivered revert must not credit again.
	if err := participant.Revert(context.Background(), task, recorded); err != nil {
		t.Fatalf("redelivered Revert: %v", err)
	}
	product, _, _ = store.Product(context.Background(), "prod-1")
	if product.InStock != 3 {
		t.Fatalf("redelivered revert over-credited stock: %d", product.InStock)
	}
}

func TestParticipant_PanicBecomesFailureResult(t *testing.T) {
	participant := NewParticipant(Registration{Name: "panicky"}, observability.NewMetrics(), quietLog)
	participant.Start(func(context.Context, Task) Result {
		panic("boom")
	})

	result := participant.Execute(context.Background(), Task{ID: "task-1"})
	if result.Success {
		t.Fatalf("panic must not produce a success result")
	}
	if result.Status != "error" || result.TaskID != "task-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParticipant_NoHandler(t *testing.T) {
	participant := NewParticipant(Registration{Name: "empty"}, nil, quietLog)

	result := participant.Execute(context.Background(), Task{ID: "task-1"})
	if result.Success || result.Status != "error" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParticipant_RevertWithoutHandler(t *testing.T) {
	participant := NewParticipant(Registration{Name: "forward-only"}, nil, quietLog)
	if err := participant.Revert(context.Background(), Task{ID: "task-1"}, Result{}); err == nil {
		t.Fatalf("expected error for non-revertible participant")
	}
}

func newPurchasingFixture(t *testing.T, gateway purchase.PaymentGateway) (*Participant, *docstore.MemoryStore) {
	t.Helper()

	docs := docstore.NewMemoryStore()
	products := catalog.NewProductStore(docs)
	users := catalog.NewUserStore(docs)
	ctx := context.Background()

	if err := products.SaveProduct(ctx, catalog.Product{ID: "prod-1", Name: "Widget", Price: 19.99, InStock: 3}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := users.SaveUser(ctx, catalog.User{ID: "user-1", Name: "Ada Fields"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	workflow := purchase.NewWorkflow(users, products, gateway, orders.NewDocLedger(docs), nil, quietLog)
	return NewPurchasingParticipant(workflow, nil, observability.NewMetrics(), quietLog), docs
}

type journaledStep struct {
	attemptID string
	stepID    string
	name      string
	success   bool
}

// spyAttemptStore records journal calls for assertions.
type spyAttemptStore struct {
	started  []string
	steps    []journaledStep
	statuses map[string]Status
}

func newSpyAttemptStore() *spyAttemptStore {
	return &spyAttemptStore{statuses: make(map[string]Status)}
}

func (s *spyAttemptStore) Start(_ context.Context, idempotencyKey, attemptID, userID, productID string) (AttemptRecord, bool, error) {
	created := true
	for _, id := range s.started {
		if id == attemptID {
			created = false
		}
	}
	s.started = append(s.started, attemptID)
	return AttemptRecord{AttemptID: attemptID, UserID: userID, ProductID: productID, Status: StatusStarted}, created, nil
}

func (s *spyAttemptStore) UpdateStatus(_ context.Context, attemptID string, status Status) error {
	s.statuses[attemptID] = status
	return nil
}

func (s *spyAttemptStore) AddStep(_ context.Context, attemptID, stepID, name string, success bool, _ []byte) error {
	s.steps = append(s.steps, journaledStep{attemptID: attemptID, stepID: stepID, name: name, success: success})
	return nil
}

func TestPurchasingParticipant_Success(t *testing.T) {
	participant, _ := newPurchasingFixture(t, purchase.NewSimulatedGateway(1))

	result := execute(t, participant, "task-1", `{"userId":"user-1","productId":"prod-1"}`)
	if !result.Success || result.Status != catalog.OrderStatusProcessed {
		t.Fatalf("unexpected result: %+v", result)
	}

	var order catalog.Order
	if err := json.Unmarshal(result.Payload, &order); err != nil {
		t.Fatalf("decode order payload: %v", err)
	}
	if order.UserID != "user-1" || order.TransactionID == "" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestPurchasingParticipant_UnknownUser(t *testing.T) {
	participant, _ := newPurchasingFixture(t, purchase.NewSimulatedGateway(1))

	result := execute(t, participant, "task-1", `{"userId":"user-404","productId":"prod-1"}`)
	if result.Success || result.Status != purchase.StatusUnknownUser {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestPurchasingParticipant_UnknownProduct(t *testing.T) {
	participant, _ := newPurchasingFixture(t, purchase.NewSimulatedGateway(1))

	result := execute(t, participant, "task-1", `{"userId":"user-1","productId":"prod-404"}`)
	if result.Success || result.Status != purchase.StatusUnknownProduct {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestPurchasingParticipant_PaymentFailed(t *testing.T) {
	participant, _ := newPurchasingFixture(t, purchase.FailingGateway{})

	result := execute(t, participant, "task-1", `{"userId":"user-1","productId":"prod-1"}`)
	if result.Success || result.Status != purchase.StatusPaymentFailed {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestPurchasingParticipant_NotRevertible(t *testing.T) {
	participant, _ := newPurchasingFixture(t, purchase.NewSimulatedGateway(1))
	if participant.Revertible() {
		t.Fatalf("purchasing participant must not be revertible")
	}
}

func newJournaledPurchasingFixture(t *testing.T, gateway purchase.PaymentGateway) (*Participant, *spyAttemptStore) {
	t.Helper()

	docs := docstore.NewMemoryStore()
	products := catalog.NewProductStore(docs)
	users := catalog.NewUserStore(docs)
	ctx := context.Background()

	if err := products.SaveProduct(ctx, catalog.Product{ID: "prod-1", Name: "Widget", Price: 19.99, InStock: 3}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := users.SaveUser(ctx, catalog.User{ID: "user-1", Name: "Ada Fields"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	attempts := newSpyAttemptStore()
	workflow := purchase.NewWorkflow(users, products, gateway, orders.NewDocLedger(docs), nil, quietLog)
	return NewPurchasingParticipant(workflow, attempts, observability.NewMetrics(), quietLog), attempts
}

func TestPurchasingParticipant_JournalsAttempt(t *testing.T) {
	participant, attempts := newJournaledPurchasingFixture(t, purchase.NewSimulatedGateway(1))

	result := execute(t, participant, "task-1", `{"userId":"user-1","productId":"prod-1"}`)
	if !result.Success {
		t.Fatalf("purchase failed: %+v", result)
	}

	if len(attempts.started) != 1 || attempts.started[0] != "attempt-1" {
		t.Fatalf("unexpected journaled attempts: %v", attempts.started)
	}
	if len(attempts.steps) != 1 {
		t.Fatalf("journaled %d steps, want 1", len(attempts.steps))
	}
	step := attempts.steps[0]
	if step.attemptID != "attempt-1" || step.name != "purchaseProduct" || !step.success {
		t.Fatalf("unexpected journaled step: %+v", step)
	}
	if got := attempts.statuses["attempt-1"]; got != StatusPaid {
		t.Fatalf("journaled status = %s, want %s", got, StatusPaid)
	}
}

func TestPurchasingParticipant_JournalsPaymentFailure(t *testing.T) {
	participant, attempts := newJournaledPurchasingFixture(t, purchase.FailingGateway{})

	result := execute(t, participant, "task-1", `{"userId":"user-1","productId":"prod-1"}`)
	if result.Success {
		t.Fatalf("expected payment failure")
	}

	if len(attempts.steps) != 1 || attempts.steps[0].success {
		t.Fatalf("unexpected journaled steps: %+v", attempts.steps)
	}
	if got := attempts.statuses["attempt-1"]; got != StatusPaymentFailed {
		t.Fatalf("journaled status = %s, want %s", got, StatusPaymentFailed)
	}
}

func TestPurchasingParticipant_JournalsValidationFailure(t *testing.T) {
	participant, attempts := newJournaledPurchasingFixture(t, purchase.NewSimulatedGateway(1))

	result := execute(t, participant, "task-1", `{"userId":"user-404","productId":"prod-1"}`)
	if result.Success {
		t.Fatalf("expected validation failure")
	}

	if got := attempts.statuses["attempt-1"]; got != StatusValidationFailed {
		t.Fatalf("journaled status = %s, want %s", got, StatusValidationFailed)
	}
}
