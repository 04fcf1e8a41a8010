// Package apperror provides structured error handling for the persistence core.
// Every failure surfaced to callers of the session, tracker and registry is an AppError.
package apperror

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Mapping and tracking errors
	CodeUnmappedType      = "UNMAPPED_TYPE"
	CodeDuplicateTracking = "DUPLICATE_TRACKING"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotTracked        = "NOT_TRACKED"

	// Persistence errors
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeBackendExecution    = "BACKEND_EXECUTION"
	CodeMaterialization     = "MATERIALIZATION_ERROR"
	CodeTransaction         = "TRANSACTION_ERROR"
	CodeSessionClosed       = "SESSION_CLOSED"

	// Input errors
	CodeValidation = "VALIDATION_ERROR"
	CodeUnsafeSQL  = "UNSAFE_SQL"

	// Query result errors
	CodeNotFound    = "NOT_FOUND"
	CodeNotSingular = "NOT_SINGULAR"
)

// Sentinels for errors.Is. Matching is by Code, so any AppError carrying the
// same code satisfies errors.Is(err, ErrX).
var (
	ErrUnmappedType        = &AppError{Code: CodeUnmappedType}
	ErrDuplicateTracking   = &AppError{Code: CodeDuplicateTracking}
	ErrInvalidTransition   = &AppError{Code: CodeInvalidTransition}
	ErrNotTracked          = &AppError{Code: CodeNotTracked}
	ErrConcurrencyConflict = &AppError{Code: CodeConcurrencyConflict}
	ErrBackendExecution    = &AppError{Code: CodeBackendExecution}
	ErrMaterialization     = &AppError{Code: CodeMaterialization}
	ErrTransaction         = &AppError{Code: CodeTransaction}
	ErrSessionClosed       = &AppError{Code: CodeSessionClosed}
	ErrValidation          = &AppError{Code: CodeValidation}
	ErrUnsafeSQL           = &AppError{Code: CodeUnsafeSQL}
	ErrNotFound            = &AppError{Code: CodeNotFound}
	ErrNotSingular         = &AppError{Code: CodeNotSingular}
)

// AppError is the standard error type of the module.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (entity type, key, field, sql)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Detail returns a single detail value.
func (e *AppError) Detail(key string) (any, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// --- Factory functions ---

// NewUnmappedType is returned for a type the registry does not know or cannot register.
func NewUnmappedType(entity, reason string) *AppError {
	return &AppError{
		Code:    CodeUnmappedType,
		Message: fmt.Sprintf("entity type %q is not mapped: %s", entity, reason),
		Details: map[string]any{"entity": entity},
	}
}

// NewDuplicateTracking is returned when an instance, or another instance with
// the same key, is already tracked.
func NewDuplicateTracking(entity string, key any) *AppError {
	return &AppError{
		Code:    CodeDuplicateTracking,
		Message: fmt.Sprintf("an instance of %s with key %v is already tracked", entity, key),
		Details: map[string]any{"entity": entity, "key": key},
	}
}

// NewInvalidTransition is returned for a state change outside the transition table.
func NewInvalidTransition(entity string, from, to fmt.Stringer) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		Details: map[string]any{"entity": entity, "from": from.String(), "to": to.String()},
	}
}

// NewNotTracked is returned when an operation needs a tracked instance.
func NewNotTracked(entity string) *AppError {
	return &AppError{
		Code:    CodeNotTracked,
		Message: fmt.Sprintf("instance of %s is not tracked by this session", entity),
		Details: map[string]any{"entity": entity},
	}
}

// NewConcurrencyConflict is returned when an UPDATE or DELETE affected no rows.
func NewConcurrencyConflict(entity string, key any, operation string) *AppError {
	return &AppError{
		Code:    CodeConcurrencyConflict,
		Message: fmt.Sprintf("%s of %s %v affected no rows; the row was changed or removed since it was loaded", operation, entity, key),
		Details: map[string]any{"entity": entity, "key": key, "operation": operation},
	}
}

// NewBackendExecution wraps a failure reported by the SQL backend.
func NewBackendExecution(sql string, err error) *AppError {
	return &AppError{
		Code:    CodeBackendExecution,
		Message: "statement failed",
		Details: map[string]any{"sql": sql},
		Err:     err,
	}
}

// NewMaterialization is returned when a row cannot be turned into an entity.
func NewMaterialization(entity, reason string) *AppError {
	return &AppError{
		Code:    CodeMaterialization,
		Message: fmt.Sprintf("cannot materialize %s: %s", entity, reason),
		Details: map[string]any{"entity": entity},
	}
}

// NewTransaction is returned for misuse of the transaction coordinator.
func NewTransaction(message string) *AppError {
	return &AppError{
		Code:    CodeTransaction,
		Message: message,
	}
}

// NewSessionClosed is returned by every operation on a disposed session.
func NewSessionClosed() *AppError {
	return &AppError{
		Code:    CodeSessionClosed,
		Message: "session is closed",
	}
}

// NewValidation creates a validation error
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewFieldValidation creates a validation error for one field of an entity.
func NewFieldValidation(entity, field, message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("%s.%s: %s", entity, field, message),
		Details: map[string]any{"entity": entity, "field": field},
	}
}

// NewUnsafeSQL is returned when raw SQL is rejected before execution.
func NewUnsafeSQL(sql, reason string) *AppError {
	return &AppError{
		Code:    CodeUnsafeSQL,
		Message: reason,
		Details: map[string]any{"sql": sql},
	}
}

// NewNotFound creates a not found error
func NewNotFound(entity string, key any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "key": key},
	}
}

// NewNotSingular is returned by Single when the query matched more than one row.
func NewNotSingular(entity string) *AppError {
	return &AppError{
		Code:    CodeNotSingular,
		Message: fmt.Sprintf("query for %s returned more than one row", entity),
		Details: map[string]any{"entity": entity},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsConcurrencyConflict checks if error is CodeConcurrencyConflict
func IsConcurrencyConflict(err error) bool {
	return HasCode(err, CodeConcurrencyConflict)
}

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool {
	return HasCode(err, CodeValidation)
}

// IsBackendExecution checks if error is CodeBackendExecution
func IsBackendExecution(err error) bool {
	return HasCode(err, CodeBackendExecution)
}
