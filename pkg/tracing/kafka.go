package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"claimant-consumer/pkg/models"
)

const kafkaTracerName = "claimant-consumer-kafka"

// InjectTraceContext adds the span context of ctx to outgoing headers.
func InjectTraceContext(ctx context.Context, headers []kafka.Header) []kafka.Header {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return headers
	}

	carrier := &kafkaHeaderCarrier{headers: headers}
	propagator.Inject(ctx, carrier)

	return carrier.headers
}

// ExtractTraceContext returns ctx with the remote span context carried by
// the record headers, if any.
func ExtractTraceContext(ctx context.Context, headers map[string][]byte) context.Context {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil || len(headers) == 0 {
		return ctx
	}

	return propagator.Extract(ctx, recordHeaderCarrier(headers))
}

type kafkaHeaderCarrier struct {
	headers []kafka.Header
}

func (c *kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaHeaderCarrier) Set(key, value string) {
	for i, h := range c.headers {
		if h.Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{
		Key:   key,
		Value: []byte(value),
	})
}

func (c *kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// recordHeaderCarrier is read only: polled records are never mutated.
type recordHeaderCarrier map[string][]byte

func (c recordHeaderCarrier) Get(key string) string {
	return string(c[key])
}

func (c recordHeaderCarrier) Set(string, string) {}

func (c recordHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// StartSpanFromRecord starts a span that continues the trace of the
// producer of record.
func StartSpanFromRecord(ctx context.Context, operationName string, record *models.SourceRecord) (context.Context, trace.Span) {
	ctx = ExtractTraceContext(ctx, record.Headers)

	return GetTracer(kafkaTracerName).Start(ctx, operationName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", record.Topic),
			attribute.Int("messaging.kafka.destination.partition", record.Partition),
			attribute.Int64("messaging.kafka.message.offset", record.Offset),
		))
}

// StartBatchSpan starts the span covering one partition batch.
func StartBatchSpan(ctx context.Context, tp models.TopicPartition, size int) (context.Context, trace.Span) {
	return GetTracer(kafkaTracerName).Start(ctx, "partition.batch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", tp.Topic),
			attribute.Int("messaging.kafka.destination.partition", tp.Partition),
			attribute.Int("messaging.batch.message_count", size),
		))
}
