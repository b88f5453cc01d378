package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	ServiceNameKey contextKey = "service_name"
	TopicKey       contextKey = "topic"
	PartitionKey   contextKey = "partition"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

// WithPartition tags the context with the topic partition a task works on.
func WithPartition(ctx context.Context, topic string, partition int) context.Context {
	ctx = context.WithValue(ctx, TopicKey, topic)
	return context.WithValue(ctx, PartitionKey, partition)
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetPartition(ctx context.Context) (string, int, bool) {
	topic, ok := ctx.Value(TopicKey).(string)
	if !ok {
		return "", 0, false
	}
	partition, ok := ctx.Value(PartitionKey).(int)
	return topic, partition, ok
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID)
	}

	if topic, partition, ok := GetPartition(ctx); ok {
		fields = append(fields, "topic", topic, "partition", partition)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}
