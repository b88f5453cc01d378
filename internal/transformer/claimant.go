package transformer

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"strings"

	"claimant-consumer/internal/extraction"
)

type claimantDocument struct {
	ID   map[string]interface{} `json:"_id"`
	Nino string                 `json:"nino"`
}

// Claimant keeps the _id and replaces the nino with a salted hash. A blank
// or absent nino becomes the empty string.
type Claimant struct {
	salts SaltProvider
}

func NewClaimant(salts SaltProvider) *Claimant {
	return &Claimant{salts: salts}
}

func (c *Claimant) Transform(ctx context.Context, dbObject string) (string, error) {
	obj, err := extraction.Decode([]byte(dbObject))
	if err != nil {
		return "", err
	}

	id, err := extraction.Object(obj, "_id")
	if err != nil {
		return "", err
	}

	var hashed string
	if nino, err := extraction.String(obj, "nino"); err == nil && strings.TrimSpace(nino) != "" {
		salt, err := c.salts.Salt(ctx)
		if err != nil {
			return "", err
		}
		hashed = HashNino(nino, salt)
	}

	return marshal(claimantDocument{ID: id, Nino: hashed})
}

// HashNino is the url-safe, padded base64 of SHA-512(nino + salt).
func HashNino(nino, salt string) string {
	sum := sha512.Sum512([]byte(nino + salt))
	return base64.URLEncoding.EncodeToString(sum[:])
}
