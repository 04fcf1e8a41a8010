package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cookbook/internal/core/store"
	"cookbook/internal/infrastructure/storage/dberr"
	"cookbook/internal/metadata"
	"cookbook/pkg/logger"
)

// Compile-time interface checks.
var (
	_ store.Backend     = (*Backend)(nil)
	_ store.SavepointTx = (*Tx)(nil)
)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running statements (default 30s)
	StatementTimeout time.Duration
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// SerializableTxOptions for saves that must not interleave with other writers.
func SerializableTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.IsolationLevel = pgx.Serializable
	return opts
}

// Querier is the subset of pgxpool.Pool and pgx.Tx used by the backend.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Conn implements store.Querier given a pgx Querier.
type Conn struct {
	q Querier
}

// Exec implements store.Querier.
func (c Conn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, dberr.Wrap(sql, err)
	}
	return tag.RowsAffected(), nil
}

// Query implements store.Querier.
func (c Conn) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	rows, err := c.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, dberr.Wrap(sql, err)
	}
	return &Rows{rows: rows, scanner: pgxscan.NewRowScanner(rows), sql: sql}, nil
}

// Rows adapts pgx.Rows to store.Rows.
type Rows struct {
	rows    pgx.Rows
	scanner *pgxscan.RowScanner
	sql     string
}

func (r *Rows) Next() bool { return r.rows.Next() }

// Values scans the current row into a column map.
func (r *Rows) Values() (map[string]any, error) {
	m := make(map[string]any)
	if err := r.scanner.Scan(&m); err != nil {
		return nil, dberr.Wrap(r.sql, fmt.Errorf("scan row: %w", err))
	}
	return m, nil
}

func (r *Rows) Err() error { return dberr.Wrap(r.sql, r.rows.Err()) }

func (r *Rows) Close() error {
	r.rows.Close()
	return nil
}

// Backend is a store.Backend over a pgx connection pool.
type Backend struct {
	Conn
	pool *Pool
	opts TxOptions
}

// NewBackend creates a backend over pool; every transaction uses opts.
func NewBackend(pool *Pool, opts TxOptions) *Backend {
	return &Backend{Conn: Conn{q: pool.Pool}, pool: pool, opts: opts}
}

// Open creates a pool from cfg and wraps it.
func Open(ctx context.Context, cfg PoolConfig, opts TxOptions) (*Backend, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewBackend(pool, opts), nil
}

// Pool returns the underlying pool.
func (b *Backend) Pool() *Pool { return b.pool }

// Name implements store.Backend.
func (b *Backend) Name() string { return "postgres" }

// Placeholder implements store.Backend.
func (b *Backend) Placeholder() squirrel.PlaceholderFormat { return squirrel.Dollar }

// Begin implements store.Backend.
func (b *Backend) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   b.opts.IsolationLevel,
		AccessMode: b.opts.AccessMode,
	})
	if err != nil {
		return nil, dberr.Wrap("BEGIN", fmt.Errorf("begin transaction: %w", err))
	}

	// Set statement timeout for protection against runaway statements
	if b.opts.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", b.opts.StatementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(context.Background()); rbErr != nil {
				logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
			}
			return nil, dberr.Wrap(stmt, fmt.Errorf("set statement_timeout: %w", err))
		}
	}

	return &Tx{Conn: Conn{q: tx}, tx: tx}, nil
}

// Close closes the pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// Tx is an open pgx transaction.
type Tx struct {
	Conn
	tx pgx.Tx
}

// Commit implements store.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return dberr.Wrap("COMMIT", fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Rollback implements store.Tx.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil {
		return dberr.Wrap("ROLLBACK", fmt.Errorf("rollback transaction: %w", err))
	}
	return nil
}

// Savepoint implements store.SavepointTx.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "SAVEPOINT ", name)
}

// RollbackTo implements store.SavepointTx.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "ROLLBACK TO SAVEPOINT ", name)
}

// Release implements store.SavepointTx.
func (t *Tx) Release(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "RELEASE SAVEPOINT ", name)
}

func (t *Tx) savepointExec(ctx context.Context, stmt, name string) error {
	if !metadata.ValidIdentifier(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	_, err := t.Exec(ctx, stmt+name)
	return err
}
