// Package transformer maps decrypted source documents to the shape stored
// downstream, one transformer per source topic.
package transformer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"claimant-consumer/pkg/models"
)

// Transformer turns a decrypted dbObject into its output document. A
// returned *extraction.FieldError is a per-record failure; a fatal error
// (see pkg/errors.IsFatal) must end the batch.
type Transformer interface {
	Transform(ctx context.Context, dbObject string) (string, error)
}

type SaltProvider interface {
	Salt(ctx context.Context) (string, error)
}

type Encrypter interface {
	Encrypt(ctx context.Context, plaintext string) (models.EncryptionResult, error)
}

// Registry selects a transformer by source topic.
type Registry struct {
	transformers map[string]Transformer
}

func NewRegistry() *Registry {
	return &Registry{transformers: make(map[string]Transformer)}
}

func (r *Registry) Register(topic string, t Transformer) {
	r.transformers[topic] = t
}

func (r *Registry) For(topic string) (Transformer, bool) {
	t, ok := r.transformers[topic]
	return t, ok
}

type dateValue struct {
	Date string `json:"$date"`
}

func marshal(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode transformed object: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
