package sink

import (
	"context"

	"claimant-consumer/pkg/models"
)

// SuccessSink receives the records of one partition batch that made it
// through the pipeline. Returning an error rolls the partition back.
type SuccessSink interface {
	Upsert(ctx context.Context, topic string, records []models.TransformationResult) error
	Delete(ctx context.Context, topic string, records []models.DeleteResult) error
}

// FailureSink receives the source records that failed processing.
type FailureSink interface {
	Send(ctx context.Context, records []*models.SourceRecord) error
}
