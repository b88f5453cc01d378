package processor

import (
	"context"
	"errors"

	"claimant-consumer/internal/crypto"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

// DecryptDataKey unwraps the record's data key. A decline fails the
// record; an unavailable key service aborts the batch.
func (p *Processor) DecryptDataKey(ctx context.Context, record *models.SourceRecord, in models.EncryptionExtractionResult) (result.Result[models.DataKeyResult], error) {
	plaintext, err := p.dataKeys.DecryptDataKey(ctx, in.Metadata.EncryptingKeyID, in.Metadata.EncryptedKey)
	if err != nil {
		var decline *crypto.DataKeyDecline
		if errors.As(err, &decline) {
			return fail[models.DataKeyResult](ctx, p.logger, record, "Failed to decrypt datakey", decline), nil
		}
		return fatal[models.DataKeyResult](record, "data key service unavailable", err)
	}

	return result.Ok(record, models.DataKeyResult{
		Extract:              in.Extract,
		InitialisationVector: in.Metadata.InitialisationVector,
		DataKey:              plaintext,
	}), nil
}
