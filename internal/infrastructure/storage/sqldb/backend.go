// Package sqldb provides a store.Backend over database/sql.
//
// It serves the embedded SQLite engine (modernc.org/sqlite) and any other
// database/sql driver, including go-sqlmock in statement-level tests.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"cookbook/internal/core/store"
	"cookbook/internal/infrastructure/storage/dberr"
	"cookbook/internal/metadata"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

// Compile-time interface checks.
var (
	_ store.Backend     = (*Backend)(nil)
	_ store.SavepointTx = (*Tx)(nil)
)

// ExecQuerier wraps the standard Exec and Query methods of *sql.DB and *sql.Tx.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements store.Querier given an ExecQuerier.
type Conn struct {
	ExecQuerier
}

// Exec implements store.Querier.
func (c Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, dberr.Wrap(query, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dberr.Wrap(query, fmt.Errorf("rows affected: %w", err))
	}
	return n, nil
}

// Query implements store.Querier.
func (c Conn) Query(ctx context.Context, query string, args ...any) (store.Rows, error) {
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dberr.Wrap(query, err)
	}
	return &Rows{rows: rows, scanner: sqlscan.NewRowScanner(rows), sql: query}, nil
}

// Rows adapts *sql.Rows to store.Rows.
type Rows struct {
	rows    *sql.Rows
	scanner *sqlscan.RowScanner
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

func (r *Rows) Close() error { return r.rows.Close() }

// Option configures a Backend.
type Option func(*Backend)

// WithName sets the engine name reported by Name.
func WithName(name string) Option {
	return func(b *Backend) { b.name = name }
}

// WithPlaceholder sets the bind parameter format.
func WithPlaceholder(p squirrel.PlaceholderFormat) Option {
	return func(b *Backend) { b.placeholder = p }
}

// WithTxOptions sets the options of every transaction the backend begins.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(b *Backend) { b.txOpts = opts }
}

// Backend is a store.Backend over *sql.DB.
type Backend struct {
	Conn
	db          *sql.DB
	name        string
	placeholder squirrel.PlaceholderFormat
	txOpts      *sql.TxOptions
}

// OpenDB wraps an existing *sql.DB. Defaults: name "sqlite", "?" placeholders.
func OpenDB(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{
		Conn:        Conn{db},
		db:          db,
		name:        "sqlite",
		placeholder: squirrel.Question,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open opens a database/sql connection and verifies it.
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*Backend, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return OpenDB(db, opts...), nil
}

// SQLiteDSN builds a modernc.org/sqlite data source for a database file with
// foreign keys enforced, write-ahead logging and a busy timeout.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

// OpenSQLite opens the SQLite database at path, or dsn when it already
// starts with "file:".
func OpenSQLite(ctx context.Context, pathOrDSN string) (*Backend, error) {
	dsn := pathOrDSN
	if len(dsn) < 5 || dsn[:5] != "file:" {
		dsn = SQLiteDSN(pathOrDSN)
	}
	return Open(ctx, "sqlite", dsn, WithName("sqlite"), WithPlaceholder(squirrel.Question))
}

// DB returns the underlying *sql.DB.
func (b *Backend) DB() *sql.DB { return b.db }

// Name implements store.Backend.
func (b *Backend) Name() string { return b.name }

// Placeholder implements store.Backend.
func (b *Backend) Placeholder() squirrel.PlaceholderFormat { return b.placeholder }

// Begin implements store.Backend.
func (b *Backend) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := b.db.BeginTx(ctx, b.txOpts)
	if err != nil {
		return nil, dberr.Wrap("BEGIN", err)
	}
	return &Tx{Conn: Conn{tx}, tx: tx}, nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error { return b.db.Close() }

// Tx is an open database/sql transaction.
type Tx struct {
	Conn
	tx *sql.Tx
}

// Commit implements store.Tx.
func (t *Tx) Commit(context.Context) error {
	return dberr.Wrap("COMMIT", t.tx.Commit())
}

// Rollback implements store.Tx.
func (t *Tx) Rollback(context.Context) error {
	return dberr.Wrap("ROLLBACK", t.tx.Rollback())
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
