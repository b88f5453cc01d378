package crypto

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
)

type DataKeyGenerator interface {
	EncryptedDataKey(ctx context.Context) (models.EncryptedDataKey, error)
}

// EncryptionService re-encrypts individual fields with AES-GCM under an
// envelope key that is rotated after maxKeyUsage encryptions. The key and
// its usage count are shared by every partition task.
type EncryptionService struct {
	keys        DataKeyGenerator
	maxKeyUsage int
	ivSize      int
	random      io.Reader

	mu   sync.Mutex
	key  *models.EncryptedDataKey
	uses int
}

func NewEncryptionService(keys DataKeyGenerator, maxKeyUsage, ivSize int) *EncryptionService {
	return &EncryptionService{
		keys:        keys,
		maxKeyUsage: maxKeyUsage,
		ivSize:      ivSize,
		random:      rand.Reader,
	}
}

func (s *EncryptionService) Encrypt(ctx context.Context, plaintext string) (models.EncryptionResult, error) {
	key, err := s.dataKey(ctx)
	if err != nil {
		return models.EncryptionResult{}, err
	}

	iv := make([]byte, s.ivSize)
	if _, err := io.ReadFull(s.random, iv); err != nil {
		return models.EncryptionResult{}, fmt.Errorf("failed to generate initialisation vector: %w", err)
	}

	ciphertext, err := sealGCM(key.Plaintext, iv, []byte(plaintext))
	if err != nil {
		return models.EncryptionResult{}, err
	}

	return models.EncryptionResult{
		EncryptingKeyID:      key.KeyID,
		InitialisationVector: base64.StdEncoding.EncodeToString(iv),
		EncryptedDataKey:     key.Ciphertext,
		CipherText:           base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// dataKey returns the current envelope key, fetching a new one when none is
// held or the current one has been used maxKeyUsage times.
func (s *EncryptionService) dataKey(ctx context.Context) (models.EncryptedDataKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil || s.uses >= s.maxKeyUsage {
		key, err := s.keys.EncryptedDataKey(ctx)
		if err != nil {
			metrics.IncRemoteFailure(metrics.DependencyKMS)
			return models.EncryptedDataKey{}, apperrors.ErrServiceUnavailable.
				WithDetail("service", metrics.DependencyKMS).
				WithCause(err)
		}
		s.key = &key
		s.uses = 0
	}

	s.uses++
	return *s.key, nil
}
