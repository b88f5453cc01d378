package processor

import (
	"context"

	"claimant-consumer/internal/extraction"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

func (p *Processor) Extract(ctx context.Context, record *models.SourceRecord, in models.JSONExtract) (result.Result[models.EncryptionExtractionResult], error) {
	meta, err := extraction.EncryptionMetadata(in.Message)
	if err != nil {
		return fail[models.EncryptionExtractionResult](ctx, p.logger, record, "Failed to extract encryption metadata", err), nil
	}
	return result.Ok(record, models.EncryptionExtractionResult{Extract: in, Metadata: meta}), nil
}
