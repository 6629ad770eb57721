// Package ordersdb persists the committed order ledger in Postgres.
package ordersdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/orders"
)

// OrderStore is an append-only order ledger backed by Postgres. Rows are
// inserted once and never updated or deleted.
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore constructs an OrderStore.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the orders table if it does not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			transaction_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			delivery_estimate JSONB
		)
	`)
	return err
}

// Append inserts the order. A duplicate id is rejected without touching the
// existing row.
func (s *OrderStore) Append(ctx context.Context, order catalog.Order) error {
	if order.ID == "" {
		return orders.ErrOrderIDRequired
	}

	estimate, err := json.Marshal(order.DeliveryEstimate)
	if err != nil {
		return fmt.Errorf("encode delivery estimate for order %s: %w", order.ID, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, product_id, product_name, price, transaction_id, status, created_at, delivery_estimate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		order.ID, order.UserID, order.ProductID, order.ProductName,
		order.Price, order.TransactionID, order.Status, order.CreatedAt, estimate,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return orders.ErrDuplicateOrder
	}

	return nil
}

// Order loads an order by id.
func (s *OrderStore) Order(ctx context.Context, id string) (catalog.Order, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, product_id, product_name, price, transaction_id, status, created_at, delivery_estimate
		FROM orders
		WHERE id = $1`,
		id,
	)

	var order catalog.Order
	var estimate []byte
	err := row.Scan(
		&order.ID, &order.UserID, &order.ProductID, &order.ProductName,
		&order.Price, &order.TransactionID, &order.Status, &order.CreatedAt, &estimate,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return catalog.Order{}, false, nil
	case err != nil:
		return catalog.Order{}, false, err
	}

	if len(estimate) > 0 {
		if err := json.Unmarshal(estimate, &order.DeliveryEstimate); err != nil {
			return catalog.Order{}, false, fmt.Errorf("decode delivery estimate for order %s: %w", id, err)
		}
	}

	return order, true, nil
}
