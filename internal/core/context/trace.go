// Package context provides operation-scoped values carried through calls.
package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext contains tracing information for one logical operation
// (a CLI command, a test, a caller-defined unit of work).
type TraceContext struct {
	TraceID     string
	OperationID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetTraceID returns trace ID from context or generates new one.
func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return uuid.New().String()
}

// NewTraceContext creates a new TraceContext with generated IDs.
func NewTraceContext(operation string) *TraceContext {
	return &TraceContext{
		TraceID:     uuid.New().String(),
		OperationID: operation,
	}
}
