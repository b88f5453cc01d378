package models

import (
	"fmt"
	"strings"
)

type DatabaseAction string

const (
	ActionInsert DatabaseAction = "INSERT"
	ActionUpdate DatabaseAction = "UPDATE"
	ActionDelete DatabaseAction = "DELETE"
)

const mongoActionPrefix = "MONGO_"

// ParseDatabaseAction accepts both the upstream MONGO_* wire values and the
// bare action names.
func ParseDatabaseAction(s string) (DatabaseAction, error) {
	switch DatabaseAction(strings.TrimPrefix(s, mongoActionPrefix)) {
	case ActionInsert:
		return ActionInsert, nil
	case ActionUpdate:
		return ActionUpdate, nil
	case ActionDelete:
		return ActionDelete, nil
	default:
		return "", fmt.Errorf("unknown database action %q", s)
	}
}

func (a DatabaseAction) IsUpsert() bool {
	return a == ActionInsert || a == ActionUpdate
}

type TimestampAndSource struct {
	Timestamp string
	Source    string
}

// JSONExtract is the parsed record body together with the fields derived
// from it up front.
type JSONExtract struct {
	Message   map[string]interface{}
	ID        string
	Action    DatabaseAction
	Timestamp TimestampAndSource
}

type EncryptionMetadata struct {
	EncryptingKeyID      string
	EncryptedKey         string
	InitialisationVector string
}

type EncryptionExtractionResult struct {
	Extract  JSONExtract
	Metadata EncryptionMetadata
}

type DataKeyResult struct {
	Extract              JSONExtract
	InitialisationVector string
	DataKey              string
}

type DecryptionResult struct {
	Extract   JSONExtract
	PlainText string
}

type TransformationResult struct {
	Extract             JSONExtract
	TransformedDBObject string
	NaturalID           string
}

type FilterResult struct {
	Transformation TransformationResult
	PassThrough    bool
}

// DeleteResult carries the natural id a DELETE record is to be removed by.
type DeleteResult struct {
	Extract   JSONExtract
	NaturalID string
}
