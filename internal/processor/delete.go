package processor

import (
	"context"
	"fmt"

	"claimant-consumer/internal/extraction"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

// Delete reads the natural id of a DELETE record from message._id.
func (p *Processor) Delete(ctx context.Context, record *models.SourceRecord, in models.JSONExtract) (result.Result[models.DeleteResult], error) {
	settings, ok := p.topics[record.Topic]
	if !ok || settings.IDField == "" {
		return fail[models.DeleteResult](ctx, p.logger, record, "Failed to extract source id",
			fmt.Sprintf("No source id configured for topic '%s'.", record.Topic)), nil
	}

	id, err := extraction.ID(in.Message, settings.IDField)
	if err != nil {
		return fail[models.DeleteResult](ctx, p.logger, record, "Failed to extract source id", err), nil
	}

	return result.Ok(record, models.DeleteResult{Extract: in, NaturalID: id}), nil
}
