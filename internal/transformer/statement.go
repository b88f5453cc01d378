package transformer

import (
	"context"

	"claimant-consumer/internal/extraction"
)

type encryptedTakeHomePay struct {
	KeyID          string `json:"keyId"`
	TakeHomePay    string `json:"takeHomePay"`
	CipherTextBlob string `json:"cipherTextBlob"`
}

type statementDocument struct {
	ID                   map[string]interface{} `json:"_id"`
	People               []interface{}          `json:"people"`
	CreatedDateTime      dateValue              `json:"createdDateTime"`
	AssessmentPeriod     map[string]interface{} `json:"assessmentPeriod"`
	TakeHomePay          string                 `json:"takeHomePay"`
	EncryptedTakeHomePay encryptedTakeHomePay   `json:"encryptedTakeHomePay"`
}

// Statement re-encrypts takeHomePay under a rotating envelope key. The
// stored value is the base64 iv followed by the base64 ciphertext.
type Statement struct {
	encrypter Encrypter
}

func NewStatement(encrypter Encrypter) *Statement {
	return &Statement{encrypter: encrypter}
}

func (s *Statement) Transform(ctx context.Context, dbObject string) (string, error) {
	obj, err := extraction.Decode([]byte(dbObject))
	if err != nil {
		return "", err
	}

	takeHomePay, err := extraction.String(obj, "takeHomePay")
	if err != nil {
		return "", err
	}
	id, err := extraction.Object(obj, "_id")
	if err != nil {
		return "", err
	}
	people, err := extraction.List(obj, "people")
	if err != nil {
		return "", err
	}
	createdDateTime, err := extraction.String(obj, "createdDateTime")
	if err != nil {
		return "", err
	}
	assessmentPeriod, err := extraction.Object(obj, "assessmentPeriod")
	if err != nil {
		return "", err
	}

	encrypted, err := s.encrypter.Encrypt(ctx, takeHomePay)
	if err != nil {
		return "", err
	}
	stored := encrypted.InitialisationVector + encrypted.CipherText

	return marshal(statementDocument{
		ID:               id,
		People:           people,
		CreatedDateTime:  dateValue{Date: createdDateTime},
		AssessmentPeriod: assessmentPeriod,
		TakeHomePay:      stored,
		EncryptedTakeHomePay: encryptedTakeHomePay{
			KeyID:          encrypted.EncryptingKeyID,
			TakeHomePay:    stored,
			CipherTextBlob: encrypted.EncryptedDataKey,
		},
	})
}
