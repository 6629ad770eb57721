package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/inventory"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/observability"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/purchase"
)

var inventorySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["checkAvailability", "reserveProduct", "releaseProduct"]},
		"productId": {"type": "string"},
		"quantity": {"type": "integer", "minimum": 1}
	},
	"required": ["action", "productId"]
}`)

var purchasingSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"userId": {"type": "string"},
		"productId": {"type": "string"},
		"deliveryEstimate": {"type": "object"}
	},
	"required": ["userId", "productId"]
}`)

type inventoryInput struct {
	Action    string `json:"action"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// NewInventoryParticipant builds the inventory participant: forward actions
// over the ledger, compensation through the handler.
func NewInventoryParticipant(ledger *inventory.Ledger, comp *CompensationHandler, metrics *observability.Metrics, logf func(format string, args ...any)) *Participant {
	p := NewParticipant(Registration{
		Name: "inventory-service",
		Description: "A service that manages product inventory, checks availability and reserves products. " +
			"Supported actions: checkAvailability (gets product status), reserveProduct (reduces inventory), and releaseProduct (returns inventory).",
		InputSchema: inventorySchema,
		Revertible:  true,
	}, metrics, logf)

	p.Start(func(ctx context.Context, task Task) Result {
		var input inventoryInput
		if err := json.Unmarshal(task.Input, &input); err != nil {
			return Result{Status: "error", Message: fmt.Sprintf("decode input: %v", err)}
		}
		if input.Quantity <= 0 {
			input.Quantity = 1
		}

		var (
			res inventory.Result
			err error
		)
		switch input.Action {
		case "checkAvailability":
			res, err = ledger.CheckAvailability(ctx, input.ProductID)
		case "reserveProduct":
			res, err = ledger.Reserve(ctx, input.ProductID, input.Quantity)
		case "releaseProduct":
			res, err = ledger.Release(ctx, input.ProductID, input.Quantity)
		default:
			return Result{Status: "error", Message: fmt.Sprintf("unknown action: %s", input.Action)}
		}

		return inventoryResult(res, err)
	})

	p.OnRevert(func(ctx context.Context, task Task, recorded Result) error {
		applied, err := comp.Revert(ctx, task, recorded)
		switch {
		case err != nil:
			metrics.CompensationFailed()
			return err
		case applied:
			metrics.CompensationApplied()
		default:
			metrics.CompensationSkipped()
		}
		return nil
	})

	return p
}

// inventoryResult maps a ledger outcome onto the participant result
// contract. Domain failures (unknown product, out of stock, nothing
// reserved) are structured results; anything else is an internal error.
func inventoryResult(res inventory.Result, err error) Result {
	switch {
	case err == nil,
		errors.Is(err, inventory.ErrUnknownProduct),
		errors.Is(err, inventory.ErrOutOfStock),
		errors.Is(err, inventory.ErrNothingReserved):
		payload, merr := json.Marshal(res)
		if merr != nil {
			return Result{Status: "error", Message: fmt.Sprintf("encode result: %v", merr)}
		}
		return Result{
			Status:  res.Status,
			Success: res.Success,
			Message: res.Message,
			Payload: payload,
		}
	default:
		return Result{Status: "error", Message: err.Error()}
	}
}

type purchaseInput struct {
	UserID           string                   `json:"userId"`
	ProductID        string                   `json:"productId"`
	DeliveryEstimate catalog.DeliveryEstimate `json:"deliveryEstimate"`
}

// NewPurchasingParticipant builds the purchasing participant over the
// workflow. It is not revertible: a committed order is never rolled back.
// When attempts is non-nil every task is journaled there: the attempt record
// on entry, the step result and the leg's status on exit. Journal failures
// are logged, never surfaced; the coordinator owns the canonical state.
func NewPurchasingParticipant(workflow *purchase.Workflow, attempts AttemptStore, metrics *observability.Metrics, logf func(format string, args ...any)) *Participant {
	p := NewParticipant(Registration{
		Name: "purchasing-service",
		Description: "A service that completes a product purchase for a user: " +
			"validates the user and product, charges payment, and records the order.",
		InputSchema: purchasingSchema,
		Revertible:  false,
	}, metrics, logf)

	journal := attemptJournal{attempts: attempts, logf: p.logf}

	p.Start(func(ctx context.Context, task Task) Result {
		var input purchaseInput
		if err := json.Unmarshal(task.Input, &input); err != nil {
			return Result{Status: "error", Message: fmt.Sprintf("decode input: %v", err)}
		}

		journal.start(ctx, task, input.UserID, input.ProductID)
		result := purchaseResult(workflow.Purchase(ctx, input.UserID, input.ProductID, input.DeliveryEstimate))
		journal.finish(ctx, task, result)
		return result
	})

	return p
}

// purchaseResult maps a workflow outcome onto the participant result
// contract.
func purchaseResult(order catalog.Order, err error) Result {
	switch {
	case err == nil:
		payload, merr := json.Marshal(order)
		if merr != nil {
			return Result{Status: "error", Message: fmt.Sprintf("encode order: %v", merr)}
		}
		return Result{
			Status:  catalog.OrderStatusProcessed,
			Success: true,
			Payload: payload,
		}
	case errors.Is(err, purchase.ErrUnknownUser):
		return Result{Status: purchase.StatusUnknownUser, Message: err.Error()}
	case errors.Is(err, purchase.ErrUnknownProduct):
		return Result{Status: purchase.StatusUnknownProduct, Message: err.Error()}
	case errors.Is(err, purchase.ErrPaymentFailed):
		return Result{Status: purchase.StatusPaymentFailed, Message: err.Error()}
	default:
		return Result{Status: "error", Message: err.Error()}
	}
}

// attemptJournal writes the purchasing leg into the attempt store. A nil
// store turns it into a no-op.
type attemptJournal struct {
	attempts AttemptStore
	logf     func(format string, args ...any)
}

func (j attemptJournal) start(ctx context.Context, task Task, userID, productID string) {
	if j.attempts == nil {
		return
	}
	// The attempt id doubles as the idempotency key: the coordinator keeps it
	// stable across redeliveries of the same attempt.
	_, created, err := j.attempts.Start(ctx, task.AttemptID, task.AttemptID, userID, productID)
	switch {
	case err != nil:
		j.logf("journal attempt %s: %v", task.AttemptID, err)
	case !created:
		j.logf("attempt %s already journaled, task %s is a redelivery", task.AttemptID, task.ID)
	}
}

func (j attemptJournal) finish(ctx context.Context, task Task, result Result) {
	if j.attempts == nil {
		return
	}
	if err := j.attempts.AddStep(ctx, task.AttemptID, task.StepID, "purchaseProduct", result.Success, result.Payload); err != nil {
		j.logf("journal step %s/%s: %v", task.AttemptID, task.StepID, err)
	}

	var status Status
	switch result.Status {
	case catalog.OrderStatusProcessed:
		status = StatusPaid
	case purchase.StatusPaymentFailed:
		status = StatusPaymentFailed
	case purchase.StatusUnknownUser, purchase.StatusUnknownProduct:
		status = StatusValidationFailed
	default:
		return
	}
	if err := j.attempts.UpdateStatus(ctx, task.AttemptID, status); err != nil {
		j.logf("journal status %s for %s: %v", status, task.AttemptID, err)
	}
}
