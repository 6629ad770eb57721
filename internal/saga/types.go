package saga

import (
	"context"
	"encoding/json"
	"errors"
)

// Task is a unit of work dispatched by the coordinator to a participant.
type Task struct {
	ID        string          `json:"id"`
	AttemptID string          `json:"attemptId"`
	StepID    string          `json:"stepId"`
	Input     json.RawMessage `json:"input"`
}

// Result is the structured outcome a participant reports for a task. The
// coordinator's own bookkeeping decides success or failure; participants
// always fill the flag honestly but never rely on the payload's shape.
type Result struct {
	TaskID  string          `json:"taskId"`
	Status  string          `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Registration describes a participant to the coordinator. Revertible
// participants expose a compensation handler.
type Registration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Revertible  bool            `json:"revertible"`
}

// AttemptRecord is a stored saga attempt entry.
type AttemptRecord struct {
	AttemptID string
	UserID    string
	ProductID string
	Status    Status
}

// AttemptStore persists idempotency keys, attempt status, and step results.
type AttemptStore interface {
	Start(ctx context.Context, idempotencyKey, attemptID, userID, productID string) (AttemptRecord, bool, error)
	UpdateStatus(ctx context.Context, attemptID string, status Status) error
	AddStep(ctx context.Context, attemptID, stepID, name string, success bool, result []byte) error
}

var ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")
