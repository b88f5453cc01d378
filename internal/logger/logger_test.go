package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"claimant-consumer/pkg/logging"
)

func TestNew(t *testing.T) {
	l, err := New(Options{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, l.Desugar().Core().Enabled(zap.DebugLevel))

	l, err = New(Options{})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := newWithCore(core, "claimant-consumer")

	ctx := logging.WithPartition(context.Background(), "db.core.claimant", 3)
	l.InfowCtx(ctx, "Inserted record", "offset", 42)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "db.core.claimant", fields["topic"])
	assert.EqualValues(t, 3, fields["partition"])
	assert.EqualValues(t, 42, fields["offset"])
	assert.Equal(t, "claimant-consumer", fields["service_name"])
}

func TestContextServiceNameWins(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := newWithCore(core, "claimant-consumer")

	ctx := logging.WithServiceName(context.Background(), "other")
	l.With("component", "sink").WarnwCtx(ctx, "Failed to delete record, no rows updated")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "other", fields["service_name"])
	assert.Equal(t, "sink", fields["component"])
}
