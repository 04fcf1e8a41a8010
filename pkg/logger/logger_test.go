package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "cookbook/internal/core/context"
)

func TestWithContext_AddsSessionFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	ctx := appctx.WithTrace(context.Background(), &appctx.TraceContext{TraceID: "t-1", OperationID: "states"})
	ctx = appctx.WithSession(ctx, &appctx.SessionContext{SessionID: "s-1", TransactionID: "x-1"})
	ctx = WithLogger(ctx, l)

	Info(ctx, "saved", "affected", 2)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "states", fields["operation"])
	assert.Equal(t, "s-1", fields["session_id"])
	assert.Equal(t, "x-1", fields["tx_id"])
	assert.Equal(t, int64(2), fields["affected"])
}

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "debug", Development: true, OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))

	// unknown level falls back to info
	l, err = New(Config{Level: "loud"})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewFromZap(zap.New(core)).WithComponent("session").Infow("opened")
	assert.Equal(t, "session", logs.All()[0].ContextMap()["component"])
}
