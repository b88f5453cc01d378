package processor

import (
	"context"

	"claimant-consumer/internal/crypto"
	"claimant-consumer/internal/extraction"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

func (p *Processor) Decrypt(ctx context.Context, record *models.SourceRecord, in models.DataKeyResult) (result.Result[models.DecryptionResult], error) {
	dbObject, err := extraction.DBObject(in.Extract.Message)
	if err != nil {
		return fail[models.DecryptionResult](ctx, p.logger, record, "Failed to decrypt dbObject", err), nil
	}

	plaintext, err := crypto.Decrypt(in.DataKey, in.InitialisationVector, dbObject)
	if err != nil {
		return fail[models.DecryptionResult](ctx, p.logger, record, "Failed to decrypt dbObject", err), nil
	}

	return result.Ok(record, models.DecryptionResult{Extract: in.Extract, PlainText: plaintext}), nil
}
