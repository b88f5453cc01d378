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

// DeadLetterSink republishes failed records unchanged to the dead letter
// topic, keeping their timestamp and prefixing their key.
type DeadLetterSink struct {
	producer broker.Producer
	topic    string
	logger   logger.Logger
}

func NewDeadLetterSink(producer broker.Producer, topic string, log logger.Logger) *DeadLetterSink {
	return &DeadLetterSink{producer: producer, topic: topic, logger: log}
}

func (s *DeadLetterSink) Send(ctx context.Context, records []*models.SourceRecord) error {
	if len(records) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		s.logger.WarnwCtx(ctx, "Sending record to the dlq", r.LogFields()...)
		messages = append(messages, DeadLetterMessage(s.topic, r))
	}

	if err := s.producer.Publish(ctx, messages...); err != nil {
		return apperrors.ErrSink.WithDetail("sink", "dlq").WithCause(err)
	}

	for topic, n := range countByTopic(records) {
		metrics.AddDLQMessages(topic, n)
	}
	return nil
}

// DeadLetterMessage builds the dead letter copy of r.
func DeadLetterMessage(topic string, r *models.SourceRecord) kafka.Message {
	key := make([]byte, 0, len(constants.DLQKeyPrefix)+len(r.Key))
	key = append(key, constants.DLQKeyPrefix...)
	key = append(key, r.Key...)

	return kafka.Message{
		Topic: topic,
		Key:   key,
		Value: r.Value,
		Time:  r.Timestamp,
	}
}

func countByTopic(records []*models.SourceRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Topic]++
	}
	return counts
}
