package sink

import (
	"context"

	"github.com/segmentio/kafka-go"

	"claimant-consumer/internal/broker"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
)

// QueueSink forwards transformed records to "<topic>.success", keyed by
// natural id. Deletes are written as tombstones.
type QueueSink struct {
	producer broker.Producer
	logger   logger.Logger
}

func NewQueueSink(producer broker.Producer, log logger.Logger) *QueueSink {
	return &QueueSink{producer: producer, logger: log}
}

func SuccessTopic(topic string) string {
	return topic + constants.SuccessTopicSuffix
}

func (s *QueueSink) Upsert(ctx context.Context, topic string, records []models.TransformationResult) error {
	if len(records) == 0 {
		return nil
	}

	target := SuccessTopic(topic)
	messages := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, kafka.Message{
			Topic: target,
			Key:   []byte(r.NaturalID),
			Value: []byte(r.TransformedDBObject),
		})
	}

	if err := s.producer.Publish(ctx, messages...); err != nil {
		return apperrors.ErrSink.WithDetail("sink", "queue").WithCause(err)
	}

	s.logger.InfowCtx(ctx, "Sent transformed records", "topic", target, "count", len(records))
	metrics.AddDatabaseRows(topic, operationUpsert, len(records))
	return nil
}

func (s *QueueSink) Delete(ctx context.Context, topic string, records []models.DeleteResult) error {
	if len(records) == 0 {
		return nil
	}

	target := SuccessTopic(topic)
	messages := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, kafka.Message{
			Topic: target,
			Key:   []byte(r.NaturalID),
		})
	}

	if err := s.producer.Publish(ctx, messages...); err != nil {
		return apperrors.ErrSink.WithDetail("sink", "queue").WithCause(err)
	}

	s.logger.InfowCtx(ctx, "Sent delete tombstones", "topic", target, "count", len(records))
	metrics.AddDatabaseRows(topic, operationDelete, len(records))
	return nil
}
