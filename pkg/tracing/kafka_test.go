package tracing

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"claimant-consumer/internal/config"
	"claimant-consumer/pkg/models"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	headers := InjectTraceContext(ctx, []kafka.Header{{Key: "other", Value: []byte("x")}})
	require.Len(t, headers, 2)

	recordHeaders := map[string][]byte{}
	for _, h := range headers {
		recordHeaders[h.Key] = h.Value
	}

	extracted := ExtractTraceContext(context.Background(), recordHeaders)
	remote := trace.SpanContextFromContext(extracted)
	assert.True(t, remote.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
}

func TestStartSpanFromRecordWithoutHeaders(t *testing.T) {
	record := &models.SourceRecord{Topic: "db.core.claimant", Partition: 1, Offset: 5}

	ctx, span := StartSpanFromRecord(context.Background(), "process", record)
	defer span.End()

	assert.NotNil(t, ctx)
	assert.False(t, trace.SpanContextFromContext(ExtractTraceContext(context.Background(), nil)).IsValid())
}

func TestInitDisabled(t *testing.T) {
	tp, err := Init(disabledConfig(), "")
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func disabledConfig() config.TracingConfig {
	return config.TracingConfig{Enabled: false}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SamplerConfig
		want string
	}{
		{"off", config.SamplerConfig{Type: "always_off"}, "AlwaysOffSampler"},
		{"default", config.SamplerConfig{}, "AlwaysOnSampler"},
		{"ratio", config.SamplerConfig{Type: "ratio", Param: 0.5}, "ParentBased{root:TraceIDRatioBased{0.5}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, Sampler(tt.cfg).Description(), tt.want)
		})
	}
}
