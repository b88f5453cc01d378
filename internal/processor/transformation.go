package processor

import (
	"context"
	"fmt"

	"claimant-consumer/internal/extraction"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

// Transform maps the decrypted dbObject with the topic's transformer and
// reads its natural id from _id.<id field>.
func (p *Processor) Transform(ctx context.Context, record *models.SourceRecord, in models.DecryptionResult) (result.Result[models.TransformationResult], error) {
	description := fmt.Sprintf("Failed to transform dbObject from '%s'.", record.Topic)

	t, ok := p.transformers.For(record.Topic)
	if !ok {
		return fail[models.TransformationResult](ctx, p.logger, record, description,
			fmt.Sprintf("No transformer configured for '%s'.", record.Topic)), nil
	}

	settings, ok := p.topics[record.Topic]
	if !ok || settings.IDField == "" {
		return fail[models.TransformationResult](ctx, p.logger, record, description,
			fmt.Sprintf("No topic id field for: '%s'.", record.Topic)), nil
	}

	dbObject, err := extraction.Decode([]byte(in.PlainText))
	if err != nil {
		return fail[models.TransformationResult](ctx, p.logger, record, description, err), nil
	}
	naturalID, err := extraction.String(dbObject, "_id", settings.IDField)
	if err != nil {
		return fail[models.TransformationResult](ctx, p.logger, record, description, err), nil
	}

	transformed, err := t.Transform(ctx, in.PlainText)
	if err != nil {
		if apperrors.IsFatal(err) {
			return fatal[models.TransformationResult](record, "transformation dependency unavailable", err)
		}
		return fail[models.TransformationResult](ctx, p.logger, record, description, err), nil
	}

	return result.Ok(record, models.TransformationResult{
		Extract:             in.Extract,
		TransformedDBObject: transformed,
		NaturalID:           naturalID,
	}), nil
}
