package processor

import (
	"context"

	"claimant-consumer/internal/extraction"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

// ParseJSON decodes the message and derives its action and timestamp. The
// id is read when the topic has an id field configured and left empty
// otherwise.
func (p *Processor) ParseJSON(ctx context.Context, record *models.SourceRecord, value string) (result.Result[models.JSONExtract], error) {
	root, err := extraction.Decode([]byte(value))
	if err != nil {
		return fail[models.JSONExtract](ctx, p.logger, record, "Failed to parse json", err), nil
	}

	action, err := extraction.Action(root)
	if err != nil {
		return fail[models.JSONExtract](ctx, p.logger, record, "Failed to parse json", err), nil
	}

	var id string
	if settings, ok := p.topics[record.Topic]; ok && settings.IDField != "" {
		id, _ = extraction.ID(root, settings.IDField)
	}

	return result.Ok(record, models.JSONExtract{
		Message:   root,
		ID:        id,
		Action:    action,
		Timestamp: extraction.Timestamp(root, action),
	}), nil
}
