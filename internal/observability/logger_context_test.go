package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerRoundTrip(t *testing.T) {
	t.Parallel()

	lg := slog.Default().With(slog.String("component", "test"))
	ctx := ContextWithLogger(context.Background(), lg)

	require.NotEqual(t, context.Background(), ctx)
	assert.Same(t, lg, LoggerFromContext(ctx))
}

func TestLoggerFallsBackToDefault(t *testing.T) {
	t.Parallel()

	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))

	ctx := ContextWithLogger(context.Background(), nil)
	assert.Equal(t, context.Background(), ctx)
}

func TestRequestIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))

	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestRequestIDEmptyLeavesContext(t *testing.T) {
	t.Parallel()

	base := context.Background()
	assert.Equal(t, base, ContextWithRequestID(base, ""))
}
