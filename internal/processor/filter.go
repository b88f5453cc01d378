package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"claimant-consumer/pkg/cel"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

// Filter decides whether a transformed record is forwarded. Claimant
// records need a non-blank nino; every topic may add CEL rules on top.
// Records filtered out are neither sunk nor dead-lettered.
func (p *Processor) Filter(ctx context.Context, record *models.SourceRecord, in models.TransformationResult) (result.Result[models.FilterResult], error) {
	description := fmt.Sprintf("Failed to perform filtering on transformed object from '%s'.", record.Topic)

	var object map[string]interface{}
	if err := json.Unmarshal([]byte(in.TransformedDBObject), &object); err != nil {
		return fail[models.FilterResult](ctx, p.logger, record, description, err), nil
	}
	if object == nil {
		return fail[models.FilterResult](ctx, p.logger, record, description, "transformed object is not a json object"), nil
	}

	pass := true
	if record.Topic == p.claimantTopic {
		nino, _ := object["nino"].(string)
		pass = strings.TrimSpace(nino) != ""
	}

	if filters := p.topics[record.Topic].Filters; pass && len(filters) > 0 {
		ok, rejectedBy, err := cel.All(ctx, filters, cel.Input{
			Topic:  record.Topic,
			Action: string(in.Extract.Action),
			ID:     in.NaturalID,
			Object: object,
		})
		if err != nil {
			return fail[models.FilterResult](ctx, p.logger, record, description, err), nil
		}
		if !ok {
			p.logger.DebugwCtx(ctx, "Filter rule rejected record",
				append(record.LogFields(), "rule", rejectedBy.Expression)...)
		}
		pass = ok
	}

	return result.Ok(record, models.FilterResult{Transformation: in, PassThrough: pass}), nil
}
