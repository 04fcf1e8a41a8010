// Package tx provides transaction management abstractions.
// Callers depend on these interfaces, not on the session or a specific backend.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Handle is an explicitly controlled transaction.
// Close rolls back when neither Commit nor Rollback was called, so it is safe to defer.
type Handle interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

