package processor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/tracing"
)

type OutcomeKind int

const (
	OutcomeFailed OutcomeKind = iota
	OutcomeUpsert
	OutcomeDelete
	OutcomeFiltered
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUpsert:
		return "upsert"
	case OutcomeDelete:
		return "delete"
	case OutcomeFiltered:
		return "filtered"
	default:
		return "failed"
	}
}

// Outcome is where a record ends up. Upsert is set for OutcomeUpsert and
// Delete for OutcomeDelete.
type Outcome struct {
	Kind   OutcomeKind
	Record *models.SourceRecord
	Upsert models.TransformationResult
	Delete models.DeleteResult
}

// Process routes a record: deletes only need their natural id, inserts and
// updates run the full decrypt and transform chain. A non-nil error is
// fatal for the batch.
func (p *Processor) Process(ctx context.Context, record *models.SourceRecord) (Outcome, error) {
	ctx, span := tracing.StartSpanFromRecord(ctx, "record.process", record)
	defer span.End()

	outcome, err := p.route(ctx, record)
	span.SetAttributes(attribute.String("claimant.outcome", outcome.Kind.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (p *Processor) route(ctx context.Context, record *models.SourceRecord) (Outcome, error) {
	failed := Outcome{Kind: OutcomeFailed, Record: record}

	parsed, err := p.PreProcess(ctx, record)
	if err != nil || !parsed.IsOk() {
		return failed, err
	}

	if parsed.Value.Action == models.ActionDelete {
		deleted, err := p.Delete(ctx, record, parsed.Value)
		if err != nil || !deleted.IsOk() {
			return failed, err
		}
		return Outcome{Kind: OutcomeDelete, Record: record, Delete: deleted.Value}, nil
	}

	filtered, err := p.CompoundProcess(ctx, record, parsed.Value)
	if err != nil || !filtered.IsOk() {
		return failed, err
	}
	if !filtered.Value.PassThrough {
		return Outcome{Kind: OutcomeFiltered, Record: record}, nil
	}
	return Outcome{Kind: OutcomeUpsert, Record: record, Upsert: filtered.Value.Transformation}, nil
}
