package sink

import (
	"context"

	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
)

// ConsoleSink logs every record instead of writing it anywhere.
type ConsoleSink struct {
	logger logger.Logger
}

func NewConsoleSink(log logger.Logger) *ConsoleSink {
	return &ConsoleSink{logger: log}
}

func (s *ConsoleSink) Upsert(ctx context.Context, topic string, records []models.TransformationResult) error {
	for _, r := range records {
		s.logger.InfowCtx(ctx, "Got result",
			"topic", topic,
			"id", r.NaturalID,
			"action", string(r.Extract.Action),
			"timestamp", r.Extract.Timestamp.Timestamp,
			"timestamp_source", r.Extract.Timestamp.Source,
			"result", r.TransformedDBObject)
	}
	metrics.AddDatabaseRows(topic, operationUpsert, len(records))
	return nil
}

func (s *ConsoleSink) Delete(ctx context.Context, topic string, records []models.DeleteResult) error {
	for _, r := range records {
		s.logger.InfowCtx(ctx, "Got delete",
			"topic", topic,
			"id", r.NaturalID,
			"timestamp", r.Extract.Timestamp.Timestamp,
			"timestamp_source", r.Extract.Timestamp.Source)
	}
	metrics.AddDatabaseRows(topic, operationDelete, len(records))
	return nil
}
