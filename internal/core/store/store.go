// Package store defines the SQL execution backend the persistence core runs on.
// Implementations live in infrastructure/storage.
package store

import (
	"context"

	"github.com/Masterminds/squirrel"
)

// Querier executes parameterized statements.
// Both a backend and an open transaction satisfy it.
type Querier interface {
	// Exec runs a statement that returns no rows and reports the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query runs a statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Rows is a forward-only cursor over a result set.
// Values returns the current row as a column name to value map.
type Rows interface {
	Next() bool
	Values() (map[string]any, error)
	Err() error
	Close() error
}

// Tx is an open backend transaction.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Backend is a connection to one database.
type Backend interface {
	Querier

	// Begin opens a new transaction.
	Begin(ctx context.Context) (Tx, error)

	// Placeholder is the bind parameter format of the backend.
	Placeholder() squirrel.PlaceholderFormat

	// Name identifies the engine ("postgres", "sqlite").
	Name() string

	Close() error
}

// SavepointTx is implemented by transactions that support savepoints.
type SavepointTx interface {
	Tx
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
}
