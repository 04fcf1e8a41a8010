package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookbook/internal/core/apperror"
	"cookbook/internal/infrastructure/storage/dberr"
)

type fakeQuerier struct {
	sql  string
	args []any
	tag  pgconn.CommandTag
	err  error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return f.tag, f.err
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.sql, f.args = sql, args
	return nil, f.err
}

func TestConn_Exec(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 1")}
	n, err := Conn{q: q}.Exec(context.Background(), "UPDATE dishes SET notes = $1 WHERE id = $2", "Baz", int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []any{"Baz", int64(1)}, q.args)
}

func TestConn_WrapsPgError(t *testing.T) {
	q := &fakeQuerier{err: &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}}

	_, err := Conn{q: q}.Exec(context.Background(), "INSERT INTO dishes (id) VALUES ($1)", int64(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrBackendExecution)
	assert.Equal(t, dberr.ConstraintUnique, dberr.ConstraintOf(err))

	_, err = Conn{q: q}.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, apperror.ErrBackendExecution)
}

func TestConn_PassesContextErrors(t *testing.T) {
	q := &fakeQuerier{err: context.DeadlineExceeded}
	_, err := Conn{q: q}.Exec(context.Background(), "SELECT pg_sleep(10)")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, apperror.IsAppError(err))
}

func TestTxOptions(t *testing.T) {
	opts := DefaultTxOptions()
	assert.Equal(t, pgx.ReadCommitted, opts.IsolationLevel)
	assert.Equal(t, pgx.ReadWrite, opts.AccessMode)
	assert.Equal(t, 30*time.Second, opts.StatementTimeout)

	assert.Equal(t, pgx.Serializable, SerializableTxOptions().IsolationLevel)
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig("postgres://localhost/cookbook")
	assert.Equal(t, "postgres://localhost/cookbook", cfg.DSN)
	assert.Equal(t, "cookbook", cfg.ApplicationName)
	assert.Positive(t, cfg.MaxConns)
}

func TestTx_RejectsInvalidSavepoint(t *testing.T) {
	tx := &Tx{Conn: Conn{q: &fakeQuerier{}}}
	assert.Error(t, tx.Savepoint(context.Background(), "x; DROP TABLE dishes"))
}
