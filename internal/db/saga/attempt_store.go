// Package sagadb persists saga attempts, steps, and compensations in Postgres.
package sagadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/saga"
)

// AttemptStore persists idempotency keys, attempt status, and step results
// in Postgres. It also implements saga.CompensationLog so a redelivered
// revert is detected across restarts.
type AttemptStore struct {
	db *sql.DB
}

// NewAttemptStore constructs an AttemptStore backed by Postgres.
func NewAttemptStore(db *sql.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// NewAttemptStoreWithSchema initializes the schema then returns the store.
func NewAttemptStoreWithSchema(ctx context.Context, db *sql.DB) (*AttemptStore, error) {
	store := NewAttemptStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the saga tables if they do not exist.
func (s *AttemptStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS saga_attempts (
			attempt_id TEXT PRIMARY KEY,
			idempotency_key TEXT UNIQUE NOT NULL,
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS saga_attempt_steps (
			id BIGSERIAL PRIMARY KEY,
			attempt_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			name TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			result JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			FOREIGN KEY (attempt_id) REFERENCES saga_attempts(attempt_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS saga_compensations (
			attempt_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (attempt_id, step_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Start inserts a new attempt or returns the existing one for the
// idempotency key. The second return reports whether this call created it.
func (s *AttemptStore) Start(ctx context.Context, idempotencyKey, attemptID, userID, productID string) (saga.AttemptRecord, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_attempts (attempt_id, idempotency_key, user_id, product_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		attemptID, idempotencyKey, userID, productID, saga.StatusStarted,
	)
	if err != nil {
		return saga.AttemptRecord{}, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return saga.AttemptRecord{}, false, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT attempt_id, user_id, product_id, status
		FROM saga_attempts
		WHERE idempotency_key = $1`,
		idempotencyKey,
	)

	var record saga.AttemptRecord
	var status string
	if err := row.Scan(&record.AttemptID, &record.UserID, &record.ProductID, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saga.AttemptRecord{}, false, fmt.Errorf("attempt not found after insert")
		}
		return saga.AttemptRecord{}, false, err
	}
	record.Status = saga.Status(status)

	if record.UserID != userID || record.ProductID != productID {
		return saga.AttemptRecord{}, false, saga.ErrIdempotencyConflict
	}

	return record, affected == 1, nil
}

// UpdateStatus updates the attempt's status and timestamp.
func (s *AttemptStore) UpdateStatus(ctx context.Context, attemptID string, status saga.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE saga_attempts
		SET status = $2, updated_at = NOW()
		WHERE attempt_id = $1`,
		attemptID, status,
	)
	return err
}

// AddStep appends a step result row.
func (s *AttemptStore) AddStep(ctx context.Context, attemptID, stepID, name string, success bool, result []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_attempt_steps (attempt_id, step_id, name, success, result)
		VALUES ($1, $2, $3, $4, $5)`,
		attemptID, stepID, name, success, result,
	)
	return err
}

// Applied reports whether a compensation for the attempt/step pair has been
// recorded.
func (s *AttemptStore) Applied(ctx context.Context, attemptID, stepID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM saga_compensations
			WHERE attempt_id = $1 AND step_id = $2
		)`,
		attemptID, stepID,
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Apply records a compensation for the attempt/step pair, after the release
// has happened. It reports false when the pair was already recorded.
func (s *AttemptStore) Apply(ctx context.Context, attemptID, stepID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_compensations (attempt_id, step_id)
		VALUES ($1, $2)
		ON CONFLICT (attempt_id, step_id) DO NOTHING`,
		attemptID, stepID,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
