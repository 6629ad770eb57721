package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/docstore"
)

// DocLedger persists orders in the shared document store.
type DocLedger struct {
	docs docstore.Store
}

// NewDocLedger constructs an order ledger over the given document store.
func NewDocLedger(docs docstore.Store) *DocLedger {
	return &DocLedger{docs: docs}
}

// Append writes the order document. The write is durable before this
// returns; re-appending an existing id fails with ErrDuplicateOrder.
func (l *DocLedger) Append(ctx context.Context, order catalog.Order) error {
	if order.ID == "" {
		return ErrOrderIDRequired
	}

	if _, ok, err := l.docs.Get(ctx, catalog.CollectionOrders, order.ID); err != nil {
		return fmt.Errorf("check order %s: %w", order.ID, err)
	} else if ok {
		return ErrDuplicateOrder
	}

	doc, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return l.docs.Put(ctx, catalog.CollectionOrders, order.ID, doc)
}

func (l *DocLedger) Order(ctx context.Context, id string) (catalog.Order, bool, error) {
	doc, ok, err := l.docs.Get(ctx, catalog.CollectionOrders, id)
	if err != nil || !ok {
		return catalog.Order{}, false, err
	}

	var order catalog.Order
	if err := json.Unmarshal(doc, &order); err != nil {
		return catalog.Order{}, false, fmt.Errorf("decode order %s: %w", id, err)
	}
	return order, true, nil
}
