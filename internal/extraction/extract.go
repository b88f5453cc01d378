package extraction

import (
	"claimant-consumer/internal/constants"
	"claimant-consumer/pkg/models"
)

const (
	fieldMessage          = "message"
	fieldType             = "@type"
	fieldID               = "_id"
	fieldLastModified     = "_lastModifiedDateTime"
	fieldCreated          = "createdDateTime"
	fieldEnqueueTimestamp = "timestamp"
	fieldEncryption       = "encryption"
	fieldDBObject         = "dbObject"
)

// Action reads message.@type. Any failure is reported against "@type".
func Action(root map[string]interface{}) (models.DatabaseAction, error) {
	raw, err := String(root, fieldMessage, fieldType)
	if err != nil {
		return "", &FieldError{Parent: messageOf(root), Field: fieldType, Path: []string{fieldMessage, fieldType}}
	}
	action, perr := models.ParseDatabaseAction(raw)
	if perr != nil {
		return "", &FieldError{Parent: messageOf(root), Field: fieldType, Path: []string{fieldMessage, fieldType}}
	}
	return action, nil
}

// Timestamp picks the record timestamp. Inserts and updates prefer the
// last-modified time, then the creation time. Deletes use the enqueue time.
// Both fall back to a fixed epoch. Empty strings are treated as absent.
func Timestamp(root map[string]interface{}, action models.DatabaseAction) models.TimestampAndSource {
	var candidates [][]string
	if action == models.ActionDelete {
		candidates = [][]string{{fieldEnqueueTimestamp}}
	} else {
		candidates = [][]string{
			{fieldMessage, fieldLastModified},
			{fieldMessage, fieldCreated},
		}
	}

	for _, path := range candidates {
		if ts, err := String(root, path...); err == nil && ts != "" {
			return models.TimestampAndSource{Timestamp: ts, Source: path[len(path)-1]}
		}
	}

	return models.TimestampAndSource{
		Timestamp: constants.EpochTimestamp,
		Source:    constants.TimestampSourceEpoch,
	}
}

// ID reads message._id.<field>.
func ID(root map[string]interface{}, field string) (string, error) {
	return String(root, fieldMessage, fieldID, field)
}

// EncryptionMetadata reads the envelope fields under message.encryption.
func EncryptionMetadata(root map[string]interface{}) (models.EncryptionMetadata, error) {
	encryption, err := Object(root, fieldMessage, fieldEncryption)
	if err != nil {
		return models.EncryptionMetadata{}, err
	}

	var meta models.EncryptionMetadata
	fields := []struct {
		name string
		dst  *string
	}{
		{"encryptedEncryptionKey", &meta.EncryptedKey},
		{"keyEncryptionKeyId", &meta.EncryptingKeyID},
		{"initialisationVector", &meta.InitialisationVector},
	}
	for _, f := range fields {
		v, err := String(encryption, f.name)
		if err != nil {
			return models.EncryptionMetadata{}, &FieldError{
				Parent: encryption,
				Field:  f.name,
				Path:   []string{fieldMessage, fieldEncryption, f.name},
			}
		}
		*f.dst = v
	}
	return meta, nil
}

// DBObject reads the encrypted payload at message.dbObject.
func DBObject(root map[string]interface{}) (string, error) {
	return String(root, fieldMessage, fieldDBObject)
}

func messageOf(root map[string]interface{}) map[string]interface{} {
	if m, ok := root[fieldMessage].(map[string]interface{}); ok {
		return m
	}
	return root
}
