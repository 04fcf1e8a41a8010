// Package dberr classifies backend failures and wraps them as BACKEND_EXECUTION errors.
package dberr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"cookbook/internal/core/apperror"
)

// Constraint is the kind of integrity constraint a statement violated.
type Constraint string

const (
	ConstraintNone       Constraint = ""
	ConstraintUnique     Constraint = "unique"
	ConstraintForeignKey Constraint = "foreign_key"
	ConstraintCheck      Constraint = "check"
	ConstraintNotNull    Constraint = "not_null"
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// sqlStateError is implemented by pgconn.PgError and other drivers exposing SQLSTATE.
type sqlStateError interface {
	SQLState() string
}

// Classify returns the constraint kind behind err, if any.
func Classify(err error) Constraint {
	if err == nil {
		return ConstraintNone
	}

	var se sqlStateError
	if errors.As(err, &se) {
		switch se.SQLState() {
		case pgUniqueViolation:
			return ConstraintUnique
		case pgForeignKeyViolation:
			return ConstraintForeignKey
		case pgCheckViolation:
			return ConstraintCheck
		case pgNotNullViolation:
			return ConstraintNotNull
		}
	}

	// SQLite reports constraint failures only in the message text.
	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint"):
		return ConstraintUnique
	case containsAny(msg, "FOREIGN KEY constraint failed", "violates foreign key constraint"):
		return ConstraintForeignKey
	case containsAny(msg, "CHECK constraint failed", "violates check constraint"):
		return ConstraintCheck
	case containsAny(msg, "NOT NULL constraint failed", "violates not-null constraint"):
		return ConstraintNotNull
	}
	return ConstraintNone
}

// Wrap converts a backend error into an AppError carrying the statement text,
// the driver message, SQLSTATE and constraint details. Context errors and
// AppErrors pass through unchanged.
func Wrap(sql string, err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	appErr := apperror.NewBackendExecution(sql, err)
	appErr.Message = err.Error()

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		appErr.Message = pgErr.Message
		appErr.WithDetail("sqlstate", pgErr.Code)
		if pgErr.ConstraintName != "" {
			appErr.WithDetail("constraint_name", pgErr.ConstraintName)
		}
		if pgErr.TableName != "" {
			appErr.WithDetail("table", pgErr.TableName)
		}
	}
	if c := Classify(err); c != ConstraintNone {
		appErr.WithDetail("constraint", string(c))
	}
	return appErr
}

// ConstraintOf reads the constraint kind recorded by Wrap.
func ConstraintOf(err error) Constraint {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		return Classify(err)
	}
	if v, ok := appErr.Detail("constraint"); ok {
		if s, ok := v.(string); ok {
			return Constraint(s)
		}
	}
	return ConstraintNone
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
