package processor

import (
	"context"
	"errors"
	"unicode/utf8"

	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

var errInvalidUTF8 = errors.New("record value is not valid utf-8")

// Source reads the record value as a string.
func (p *Processor) Source(ctx context.Context, record *models.SourceRecord, _ *models.SourceRecord) (result.Result[string], error) {
	if record.Value == nil {
		return fail[string](ctx, p.logger, record, "Failed to get message value", errNoValue), nil
	}
	if !utf8.Valid(record.Value) {
		return fail[string](ctx, p.logger, record, "Failed to get message value", errInvalidUTF8), nil
	}
	return result.Ok(record, string(record.Value)), nil
}
