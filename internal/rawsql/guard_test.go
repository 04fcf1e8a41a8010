package rawsql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cookbook/internal/core/apperror"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		nargs   int
		wantErr bool
	}{
		{"plain select", "SELECT * FROM dishes", 0, false},
		{"bound filter", "SELECT * FROM dishes WHERE notes LIKE ?", 1, false},
		{"trailing semicolon", "DELETE FROM dishes WHERE id = ?;  ", 1, false},
		{"question mark in literal", "SELECT * FROM dishes WHERE title = 'Why?'", 0, false},
		{"question mark in comment", "SELECT 1 -- really?\n", 0, false},
		{"escaped question mark", "SELECT '{}'::jsonb ?? 'a'", 0, false},
		{"doubled quote", "SELECT * FROM dishes WHERE title = 'it''s ?'", 0, false},
		{"missing argument", "SELECT * FROM dishes WHERE id = ?", 0, true},
		{"extra argument", "SELECT * FROM dishes", 1, true},
		{"stacked statements", "SELECT * FROM dishes; DROP TABLE dishes", 0, true},
		{"injected literal", "SELECT * FROM dishes WHERE notes LIKE '%x%'; DELETE FROM dishes --%'", 0, true},
		{"native placeholder", "SELECT * FROM dishes WHERE id = $1", 1, true},
		{"unterminated quote", "SELECT * FROM dishes WHERE title = 'x", 0, true},
		{"empty", "   ", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.sql, tt.nargs)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrUnsafeSQL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTrimTerminator(t *testing.T) {
	assert.Equal(t, "SELECT 1", TrimTerminator("  SELECT 1 ;; "))
	assert.Equal(t, "SELECT 1", TrimTerminator("SELECT 1"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		sql  string
		want Statement
	}{
		{"SELECT * FROM dishes", Statement{Op: OpSelect}},
		{"insert into Dishes (title) values (?)", Statement{Op: OpInsert, Table: "dishes"}},
		{"UPDATE dishes SET stars = 5 RETURNING id", Statement{Op: OpUpdate, Table: "dishes", HasReturning: true}},
		{"DELETE FROM dishes WHERE id NOT IN (SELECT dish_id FROM ingredients)", Statement{Op: OpDelete, Table: "dishes"}},
		{"PRAGMA foreign_keys = ON", Statement{Op: OpOther}},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.sql))
		})
	}
	assert.True(t, Classify("DELETE FROM dishes").Mutates())
	assert.False(t, Classify("SELECT 1").Mutates())
}
