package orders

import (
	"context"
	"errors"
	"sync"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
)

// Ledger is the append-only store of committed orders. An appended order is
// never mutated or removed.
type Ledger interface {
	Append(ctx context.Context, order catalog.Order) error
	Order(ctx context.Context, id string) (catalog.Order, bool, error)
}

// ErrDuplicateOrder signals an order id that was already appended.
var ErrDuplicateOrder = errors.New("order already recorded")

// ErrOrderIDRequired signals an order without an id.
var ErrOrderIDRequired = errors.New("order id is required")

// MemoryLedger keeps orders in memory, preserving append order.
type MemoryLedger struct {
	mu     sync.Mutex
	byID   map[string]catalog.Order
	inView []catalog.Order
}

// NewMemoryLedger constructs an empty in-memory order ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byID: make(map[string]catalog.Order)}
}

func (l *MemoryLedger) Append(ctx context.Context, order catalog.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order.ID == "" {
		return ErrOrderIDRequired
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byID[order.ID]; ok {
		return ErrDuplicateOrder
	}
	l.byID[order.ID] = order
	l.inView = append(l.inView, order)
	return nil
}

func (l *MemoryLedger) Order(ctx context.Context, id string) (catalog.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Order{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.byID[id]
	return order, ok, nil
}

// Orders returns a snapshot of appended orders, oldest first (for
// testing/inspection).
func (l *MemoryLedger) Orders() []catalog.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]catalog.Order, len(l.inView))
	copy(out, l.inView)
	return out
}
