package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestContextFieldsAccumulate(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Get()
	Set(zap.New(core))
	t.Cleanup(func() { Set(prev) })

	ctx := NewContext(context.Background(), zap.String("recycler", "messages"))
	child := NewContext(ctx, zap.Uint64("worker", 3))
	FromContext(child).Info("stack created")
	FromContext(ctx).Info("parent")
	FromContext(context.Background()).Info("bare")

	require.Equal(t, 3, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "messages", fields["recycler"])
	assert.Equal(t, uint64(3), fields["worker"])

	_, ok := logs.All()[1].ContextMap()["worker"]
	assert.False(t, ok)
	assert.Empty(t, logs.All()[2].ContextMap())
}

func TestSetReplacesGlobal(t *testing.T) {
	prev := Get()
	t.Cleanup(func() { Set(prev) })

	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	With(zap.String("component", "bench")).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "bench", logs.All()[0].ContextMap()["component"])
	assert.NoError(t, Sync())
}
