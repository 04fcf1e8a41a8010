package sqldb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookbook/internal/core/apperror"
	"cookbook/internal/infrastructure/storage/dberr"
)

func TestBackend_ExecAndQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := OpenDB(db, WithName("mock"), WithPlaceholder(squirrel.Dollar))
	assert.Equal(t, "mock", b.Name())
	assert.Equal(t, squirrel.Dollar, b.Placeholder())

	mock.ExpectExec(`DELETE FROM dishes WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, title FROM dishes`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(int64(1), "Foo").
			AddRow(int64(2), "Bar"))

	ctx := context.Background()
	n, err := b.Exec(ctx, "DELETE FROM dishes WHERE id = $1", int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := b.Query(ctx, "SELECT id, title FROM dishes")
	require.NoError(t, err)
	var got []map[string]any
	for rows.Next() {
		v, err := rows.Values()
		require.NoError(t, err)
		got = append(got, v)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0]["id"])
	assert.Equal(t, "Bar", got[1]["title"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackend_WrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO ingredients`).
		WillReturnError(errors.New("FOREIGN KEY constraint failed"))

	_, err = OpenDB(db).Exec(context.Background(), "INSERT INTO ingredients (dish_id) VALUES (?)", int64(99))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrBackendExecution)
	assert.Equal(t, dberr.ConstraintForeignKey, dberr.ConstraintOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackend_Transaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SAVEPOINT sp_1`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT sp_1`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := OpenDB(db).Begin(ctx)
	require.NoError(t, err)

	sp := tx.(*Tx)
	require.NoError(t, sp.Savepoint(ctx, "sp_1"))
	require.NoError(t, sp.RollbackTo(ctx, "sp_1"))
	assert.Error(t, sp.Savepoint(ctx, "sp; DROP TABLE dishes"))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	b, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Exec(ctx, "CREATE TABLE parents (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	_, err = b.Exec(ctx, "CREATE TABLE children (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parents(id))")
	require.NoError(t, err)

	// foreign keys are enforced
	_, err = b.Exec(ctx, "INSERT INTO children (parent_id) VALUES (?)", int64(42))
	require.Error(t, err)
	assert.Equal(t, dberr.ConstraintForeignKey, dberr.ConstraintOf(err))

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO parents (id) VALUES (?)", int64(1))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	rows, err := b.Query(ctx, "SELECT COUNT(*) AS n FROM parents")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	v, err := rows.Values()
	require.NoError(t, err)
	assert.Equal(t, int64(0), v["n"])
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("/tmp/x.db")
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_pragma=foreign_keys%281%29")
}
