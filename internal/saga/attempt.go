package saga

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status captures the state of a saga attempt.
type Status string

const (
	StatusStarted          Status = "started"
	StatusReserved         Status = "reserved"
	StatusPaid             Status = "paid"
	StatusCommitted        Status = "committed"
	StatusValidationFailed Status = "validation_failed"
	StatusPaymentFailed    Status = "payment_failed"
	StatusCompensating     Status = "compensating"
	StatusCompensated      Status = "compensated"
)

// transitions is the legal state machine per attempt. Committed,
// compensated, and validation-failed are terminal.
var transitions = map[Status][]Status{
	StatusStarted:       {StatusReserved, StatusValidationFailed},
	StatusReserved:      {StatusPaid, StatusPaymentFailed},
	StatusPaid:          {StatusCommitted},
	StatusPaymentFailed: {StatusCompensating},
	StatusCompensating:  {StatusCompensated},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the attempt.
func (s Status) Terminal() bool {
	switch s {
	case StatusCommitted, StatusCompensated, StatusValidationFailed:
		return true
	}
	return false
}

// StepRecord is the recorded result of one forward step.
type StepRecord struct {
	StepID     string          `json:"stepId"`
	Name       string          `json:"name"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Attempt tracks one saga attempt: its status and the ordered step results.
// Steps within an attempt run sequentially; distinct attempts may run
// concurrently.
type Attempt struct {
	ID        string       `json:"id"`
	Status    Status       `json:"status"`
	Steps     []StepRecord `json:"steps"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// NewAttempt constructs an attempt in the started state.
func NewAttempt(id string) *Attempt {
	now := time.Now().UTC()
	return &Attempt{
		ID:        id,
		Status:    StatusStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ErrInvalidTransition signals an illegal state change.
var ErrInvalidTransition = errors.New("invalid saga transition")

// Transition advances the attempt or fails without mutating it.
func (a *Attempt) Transition(next Status) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordStep appends a step result to the attempt.
func (a *Attempt) RecordStep(stepID, name string, success bool, result json.RawMessage) {
	a.Steps = append(a.Steps, StepRecord{
		StepID:     stepID,
		Name:       name,
		Success:    success,
		Result:     append(json.RawMessage(nil), result...),
		RecordedAt: time.Now().UTC(),
	})
	a.UpdatedAt = time.Now().UTC()
}
