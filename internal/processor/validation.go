package processor

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

const defaultSchemaURL = "https://schemas.claimant-consumer/message.schema.json"

//go:embed schemas/message.schema.json
var defaultSchema []byte

// CompileSchema compiles the message schema once at startup. An empty
// location selects the built in schema.
func CompileSchema(location string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	if location != "" {
		if _, err := os.Stat(location); err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", location, err)
		}
		schema, err := compiler.Compile(location)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", location, err)
		}
		return schema, nil
	}

	if err := compiler.AddResource(defaultSchemaURL, bytes.NewReader(defaultSchema)); err != nil {
		return nil, fmt.Errorf("failed to load built in schema: %w", err)
	}
	schema, err := compiler.Compile(defaultSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile built in schema: %w", err)
	}
	return schema, nil
}

// Validate checks the raw message against the schema.
func (p *Processor) Validate(ctx context.Context, record *models.SourceRecord, value string) (result.Result[string], error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(value)))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		metrics.IncValidationFailure(record.Topic)
		return fail[string](ctx, p.logger, record, "Message failed validation", err), nil
	}

	if err := p.schema.Validate(doc); err != nil {
		metrics.IncValidationFailure(record.Topic)
		return fail[string](ctx, p.logger, record, "Message failed validation", err), nil
	}

	return result.Ok(record, value), nil
}
