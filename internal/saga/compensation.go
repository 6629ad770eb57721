package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/inventory"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/purchase"
)

// CompensationLog tracks which compensations have been applied so a
// redelivered revert cannot double-credit stock. Applied reports whether the
// attempt/step pair is already recorded; Apply records it after the release
// has actually happened and reports false when another delivery got there
// first.
type CompensationLog interface {
	Applied(ctx context.Context, attemptID, stepID string) (bool, error)
	Apply(ctx context.Context, attemptID, stepID string) (bool, error)
}

// MemoryCompensationLog keeps applied compensations in memory.
type MemoryCompensationLog struct {
	mu      sync.Mutex
	applied map[string]struct{}
}

// NewMemoryCompensationLog constructs an empty compensation log.
func NewMemoryCompensationLog() *MemoryCompensationLog {
	return &MemoryCompensationLog{applied: make(map[string]struct{})}
}

func (l *MemoryCompensationLog) Applied(ctx context.Context, attemptID, stepID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.applied[attemptID+"/"+stepID]
	return ok, nil
}

func (l *MemoryCompensationLog) Apply(ctx context.Context, attemptID, stepID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := attemptID + "/" + stepID
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.applied[key]; ok {
		return false, nil
	}
	l.applied[key] = struct{}{}
	return true, nil
}

// Releaser undoes a committed reservation.
type Releaser interface {
	Release(ctx context.Context, productID string, quantity int) (inventory.Result, error)
}

// reservationPayload is the part of a recorded reservation result the
// handler needs. The product and quantity come strictly from the recorded
// payload, never from ambient state.
type reservationPayload struct {
	Action    string `json:"action"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CompensationHandler undoes a previously successful reservation when a
// later step of the same attempt fails. It is invoked only by the
// coordinator and must tolerate redelivery.
type CompensationHandler struct {
	releases Releaser
	applied  CompensationLog
	retry    purchase.RetryPolicy
	logf     func(format string, args ...any)
}

// NewCompensationHandler constructs a compensation handler. The retry policy
// bounds release re-attempts; it never retries indefinitely.
func NewCompensationHandler(releases Releaser, applied CompensationLog, retry purchase.RetryPolicy, logf func(format string, args ...any)) *CompensationHandler {
	if logf == nil {
		logf = log.Printf
	}
	return &CompensationHandler{
		releases: releases,
		applied:  applied,
		retry:    retry,
		logf:     logf,
	}
}

// Revert releases the stock a reserveProduct task committed and reports
// whether a release was applied. Tasks that are not successful reservations
// are ignored: a failed reservation committed nothing, so there is nothing
// to undo.
func (h *CompensationHandler) Revert(ctx context.Context, task Task, recorded Result) (bool, error) {
	if !recorded.Success {
		return false, nil
	}

	var payload reservationPayload
	if len(recorded.Payload) > 0 {
		if err := json.Unmarshal(recorded.Payload, &payload); err != nil {
			return false, fmt.Errorf("decode recorded result for task %s: %w", task.ID, err)
		}
	}
	if payload.Action != "reserveProduct" {
		return false, nil
	}
	if payload.ProductID == "" {
		return false, fmt.Errorf("recorded result for task %s has no product id", task.ID)
	}
	quantity := payload.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	done, err := h.applied.Applied(ctx, task.AttemptID, task.StepID)
	if err != nil {
		return false, fmt.Errorf("compensation log for %s/%s: %w", task.AttemptID, task.StepID, err)
	}
	if done {
		h.logf("compensation for %s/%s already applied, skipping", task.AttemptID, task.StepID)
		return false, nil
	}

	release := func() error {
		_, err := h.releases.Release(ctx, payload.ProductID, quantity)
		if errors.Is(err, inventory.ErrNothingReserved) {
			// Stock was already credited back; the net effect is achieved.
			h.logf("release for %s/%s found nothing outstanding", task.AttemptID, task.StepID)
			return nil
		}
		return err
	}

	retry := h.retry
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = func(err error) bool {
			return !errors.Is(err, inventory.ErrUnknownProduct) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}
	}
	if err := retry.Do(ctx, release); err != nil {
		h.logf("compensation for %s/%s failed: %v", task.AttemptID, task.StepID, err)
		return false, fmt.Errorf("release product %s: %w", payload.ProductID, err)
	}

	// Record only after the stock is back. A failed release stays unrecorded
	// so the coordinator's redelivery gets another shot at it.
	if _, err := h.applied.Apply(ctx, task.AttemptID, task.StepID); err != nil {
		// The release went through; a redelivery will find nothing
		// outstanding and record the pair then.
		return true, fmt.Errorf("record compensation for %s/%s: %w", task.AttemptID, task.StepID, err)
	}

	h.logf("compensated reservation of %d x %s for attempt %s", quantity, payload.ProductID, task.AttemptID)
	return true, nil
}
