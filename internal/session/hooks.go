package session

import (
	"context"

	"github.com/Masterminds/squirrel"

	"cookbook/internal/core/store"
	"cookbook/internal/tracking"
)

// Operation is the statement kind a change record describes.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeRecord describes one row written by a save.
type ChangeRecord struct {
	Entity    string
	Table     string
	Key       string
	Operation Operation
	// Changes holds every field for inserts and deletes, dirty fields for updates.
	Changes []tracking.Change
}

// SaveContext is passed to hooks while the save transaction is still open.
type SaveContext struct {
	SessionID     string
	TransactionID string

	// Querier runs statements inside the save transaction.
	Querier store.Querier
	// Placeholder is the backend's bind parameter format.
	Placeholder squirrel.PlaceholderFormat

	Records []ChangeRecord
}

// SaveHook observes successful saves before they become durable.
// Returning an error aborts the save.
type SaveHook interface {
	OnSave(ctx context.Context, sc *SaveContext) error
}

// SaveHookFunc adapts a function to SaveHook.
type SaveHookFunc func(ctx context.Context, sc *SaveContext) error

// OnSave implements SaveHook.
func (f SaveHookFunc) OnSave(ctx context.Context, sc *SaveContext) error { return f(ctx, sc) }
