package saga

import (
	"context"
	"fmt"
	"log"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/observability"
)

// Handler processes a forward task and reports a structured result.
type Handler func(ctx context.Context, task Task) Result

// RevertHandler undoes the effect a previously recorded result committed.
type RevertHandler func(ctx context.Context, task Task, recorded Result) error

// Participant executes forward actions for the coordinator and, when marked
// revertible, compensates them. A participant never lets an internal error
// escape without producing a result: the coordinator's compensation decision
// depends on receiving one.
type Participant struct {
	registration Registration
	handler      Handler
	revert       RevertHandler
	metrics      *observability.Metrics
	logf         func(format string, args ...any)
}

// NewParticipant constructs a participant with the given registration.
func NewParticipant(registration Registration, metrics *observability.Metrics, logf func(format string, args ...any)) *Participant {
	if logf == nil {
		logf = log.Printf
	}
	return &Participant{
		registration: registration,
		metrics:      metrics,
		logf:         logf,
	}
}

// Registration returns the descriptor sent to the coordinator.
func (p *Participant) Registration() Registration {
	return p.registration
}

// Start sets the forward task handler.
func (p *Participant) Start(h Handler) {
	p.handler = h
}

// OnRevert sets the compensation handler.
func (p *Participant) OnRevert(h RevertHandler) {
	p.revert = h
}

// Revertible reports whether the participant exposes a compensation handler.
func (p *Participant) Revertible() bool {
	return p.registration.Revertible && p.revert != nil
}

// Execute runs the forward handler for a task. Panics and missing handlers
// become failure results rather than lost tasks.
func (p *Participant) Execute(ctx context.Context, task Task) (result Result) {
	span := p.metrics.Start(p.registration.Name + ".task")
	defer func() {
		if r := recover(); r != nil {
			p.logf("task %s handler panicked: %v", task.ID, r)
			result = Result{
				TaskID:  task.ID,
				Status:  "error",
				Message: fmt.Sprintf("internal error: %v", r),
			}
		}
		span.End(!result.Success)
	}()

	if p.handler == nil {
		return Result{
			TaskID:  task.ID,
			Status:  "error",
			Message: "no task handler registered",
		}
	}

	result = p.handler(ctx, task)
	result.TaskID = task.ID
	return result
}

// Revert runs the compensation handler against a recorded result.
func (p *Participant) Revert(ctx context.Context, task Task, recorded Result) (err error) {
	span := p.metrics.Start(p.registration.Name + ".revert")
	defer func() {
		if r := recover(); r != nil {
			p.logf("revert for task %s panicked: %v", task.ID, r)
			err = fmt.Errorf("internal error: %v", r)
		}
		span.End(err != nil)
	}()

	if p.revert == nil {
		return fmt.Errorf("participant %s is not revertible", p.registration.Name)
	}
	return p.revert(ctx, task, recorded)
}
