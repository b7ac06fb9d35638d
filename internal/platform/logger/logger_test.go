package logger

import (
	"context"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := globalLogger
	globalLogger = zap.New(core)
	t.Cleanup(func() { globalLogger = prev })

	ctx := context.WithValue(context.Background(), chiMiddleware.RequestIDKey, "req-1")
	ctx = With(ctx, zap.String("user_id", "u1"))
	ctx = With(ctx, zap.String("submission_id", "s1"))

	Info(ctx, "graded", zap.String("verdict", "Accepted"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, "u1", fields["user_id"])
	require.Equal(t, "s1", fields["submission_id"])
	require.Equal(t, "Accepted", fields["verdict"])
}

func TestNoopBeforeInit(t *testing.T) {
	prev := globalLogger
	globalLogger = nil
	t.Cleanup(func() { globalLogger = prev })

	require.NotPanics(t, func() {
		Info(context.Background(), "dropped")
		Error(context.Background(), "dropped")
	})
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)

	l, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, l)
}
