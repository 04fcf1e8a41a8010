package session

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookbook/internal/core/apperror"
	"cookbook/internal/core/entity"
	"cookbook/internal/domain/cookbook"
)

func TestSession_AddTracksGraph(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := openSession(t, f)

	dish := cookbook.NewDish("Porridge", "")
	ing := dish.AddIngredient("Oats", "g", decimal.NewFromInt(50))
	require.NoError(t, s.Add(dish))

	assert.Equal(t, entity.Added, s.State(ing))
	assert.Equal(t, 2, s.Tracker().Len())

	err := s.Add(dish)
	assert.ErrorIs(t, err, apperror.ErrDuplicateTracking)
}

func TestSession_RemoveAddedDetaches(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := openSession(t, f)

	dish := cookbook.NewDish("Foo", "")
	require.NoError(t, s.Add(dish))
	require.NoError(t, s.Remove(dish))
	assert.Equal(t, entity.Detached, s.State(dish))

	err := s.Remove(dish)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotTracked))
}

func TestSession_UpdateStates(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := openSession(t, f)

	unsaved := cookbook.NewDish("New", "")
	require.NoError(t, s.Update(unsaved))
	assert.Equal(t, entity.Added, s.State(unsaved))

	stored := &cookbook.Dish{ID: 9, Title: "Stored"}
	require.NoError(t, s.Attach(stored))
	require.NoError(t, s.Remove(stored))
	err := s.Update(stored)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestSession_UpdateMarksEveryField(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := openSession(t, f)

	dish := &cookbook.Dish{ID: 3, Title: "Foo", Notes: cookbook.Ptr("Bar")}
	require.NoError(t, s.Attach(dish))
	require.NoError(t, s.SetValue(dish, "Notes", cookbook.Ptr("Baz")))
	assert.Equal(t, entity.Modified, s.State(dish))
	assert.Equal(t, "Baz", *dish.Notes)

	require.NoError(t, s.Update(dish))
	entry, err := s.Entry(dish)
	require.NoError(t, err)
	for _, field := range []string{"Title", "Notes", "Stars"} {
		assert.True(t, entry.IsModified(field), field)
	}
	assert.False(t, entry.IsModified("ID"))
}

func TestSession_EntryReportsOriginals(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := openSession(t, f)

	dish := &cookbook.Dish{ID: 1, Title: "Foo", Notes: cookbook.Ptr("Bar")}
	require.NoError(t, s.Attach(dish))
	dish.Notes = cookbook.Ptr("Baz")
	s.DetectChanges()

	entry, err := s.Entry(dish)
	require.NoError(t, err)
	orig, ok := entry.OriginalValue("Notes")
	require.True(t, ok)
	assert.Equal(t, "Bar", orig)
	assert.True(t, entry.IsModified("Notes"))
	assert.False(t, entry.IsModified("Title"))

	_, err = s.Entry(cookbook.NewDish("Other", ""))
	assert.ErrorIs(t, err, apperror.ErrNotTracked)
}

func TestSession_ClosedRejectsWork(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := f.Open(context.Background())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Add(cookbook.NewDish("Foo", "")), apperror.ErrSessionClosed)
	_, err := s.SaveChanges(context.Background())
	assert.ErrorIs(t, err, apperror.ErrSessionClosed)
	_, err = From[*cookbook.Dish](s).All(context.Background())
	assert.ErrorIs(t, err, apperror.ErrSessionClosed)
	_, err = s.Begin(context.Background())
	assert.ErrorIs(t, err, apperror.ErrSessionClosed)
}

func TestQuery_ToSQL(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := openSession(t, f)

	sql, args, err := From[*cookbook.Dish](s).
		WhereField("Stars", 4).
		OrderBy("title DESC").
		Limit(10).
		ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, title, notes, stars FROM dishes WHERE stars = ? ORDER BY title DESC LIMIT 10", sql)
	assert.Equal(t, []any{4}, args)

	sql, args, err = FromSQL[*cookbook.Dish](s, "SELECT * FROM dishes WHERE notes LIKE ?", "%z").
		Where("stars >= ?", 3).
		ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT * FROM dishes WHERE notes LIKE ?) AS raw_src WHERE stars >= ?", sql)
	assert.Equal(t, []any{"%z", 3}, args)

	_, _, err = From[*cookbook.Dish](s).OrderBy("title; DROP TABLE dishes").ToSQL()
	assert.ErrorIs(t, err, apperror.ErrUnsafeSQL)

	_, _, err = From[*cookbook.Dish](s).WhereField("Missing", 1).ToSQL()
	assert.True(t, apperror.IsValidation(err))
}

func TestQuery_BuildersDoNotMutate(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := openSession(t, f)

	base := From[*cookbook.Dish](s)
	_ = base.Where("stars > ?", 1).Limit(1)

	sql, _, err := base.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, title, notes, stars FROM dishes", sql)
}

func TestFromSQL_Rejects(t *testing.T) {
	f, _ := newMockFactory(t, nil)
	s := openSession(t, f)

	tests := []struct {
		name string
		sql  string
		args []any
	}{
		{"stacked statement", "SELECT * FROM dishes; DROP TABLE dishes", nil},
		{"argument count", "SELECT * FROM dishes WHERE id = ?", nil},
		{"no rows returned", "DELETE FROM dishes", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSQL[*cookbook.Dish](s, tt.sql, tt.args...).All(context.Background())
			assert.ErrorIs(t, err, apperror.ErrUnsafeSQL)
		})
	}
}

func TestBegin_OnlyOne(t *testing.T) {
	f, mock := newMockFactory(t, nil)
	s := openSession(t, f)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, apperror.ErrTransaction)

	require.NoError(t, tx.Rollback(ctx))
	assert.True(t, tx.Done())
	assert.ErrorIs(t, tx.Commit(ctx), apperror.ErrTransaction)
	require.NoError(t, tx.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
