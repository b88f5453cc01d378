// Package processor turns polled records into sink-ready results. Each
// stage either passes its output on, fails the record (routing it to the
// dead letter sink) or returns an error that aborts the batch.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"claimant-consumer/internal/logger"
	"claimant-consumer/internal/transformer"
	"claimant-consumer/pkg/cel"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/result"
)

type DataKeyDecrypter interface {
	DecryptDataKey(ctx context.Context, keyID, ciphertext string) (string, error)
}

// TopicSettings are the per-topic rules the pipeline applies.
type TopicSettings struct {
	IDField string
	Filters []*cel.Filter
}

type Config struct {
	// SchemaLocation is a JSON schema file path. Empty uses the built in
	// message schema.
	SchemaLocation string
	ClaimantTopic  string
	Topics         map[string]TopicSettings
}

type Processor struct {
	schema        *jsonschema.Schema
	dataKeys      DataKeyDecrypter
	transformers  *transformer.Registry
	claimantTopic string
	topics        map[string]TopicSettings
	logger        logger.Logger
}

func New(cfg Config, dataKeys DataKeyDecrypter, transformers *transformer.Registry, log logger.Logger) (*Processor, error) {
	schema, err := CompileSchema(cfg.SchemaLocation)
	if err != nil {
		return nil, err
	}

	topics := cfg.Topics
	if topics == nil {
		topics = map[string]TopicSettings{}
	}

	return &Processor{
		schema:        schema,
		dataKeys:      dataKeys,
		transformers:  transformers,
		claimantTopic: cfg.ClaimantTopic,
		topics:        topics,
		logger:        log,
	}, nil
}

// PreProcess runs source, validation and json parsing.
func (p *Processor) PreProcess(ctx context.Context, record *models.SourceRecord) (result.Result[models.JSONExtract], error) {
	stage := result.Compose(result.Compose(p.Source, p.Validate), p.ParseJSON)
	return stage(ctx, record, record)
}

// CompoundProcess takes a parsed upsert through decryption,
// transformation and filtering.
func (p *Processor) CompoundProcess(ctx context.Context, record *models.SourceRecord, in models.JSONExtract) (result.Result[models.FilterResult], error) {
	decrypt := result.Compose(result.Compose(p.Extract, p.DecryptDataKey), p.Decrypt)
	stage := result.Compose(result.Compose(decrypt, p.Transform), p.Filter)
	return stage(ctx, record, in)
}

// fail logs the failed step against the record coordinates and returns a
// failed result.
func fail[T any](ctx context.Context, log logger.Logger, record *models.SourceRecord, description string, reason interface{}) result.Result[T] {
	fields := append(record.LogFields(), "description", description)
	switch r := reason.(type) {
	case nil:
	case error:
		fields = append(fields, "error", r.Error())
	default:
		fields = append(fields, "reason", fmt.Sprint(r))
	}

	log.ErrorwCtx(ctx, "Failed record", fields...)
	return result.Fail[T](record)
}

// fatal wraps an error that must abort the batch with the record
// coordinates.
func fatal[T any](record *models.SourceRecord, description string, err error) (result.Result[T], error) {
	return result.Fail[T](record), fmt.Errorf("%s for %s offset %d: %w", description, record.TopicPartition(), record.Offset, err)
}

var errNoValue = errors.New("record value is null")
