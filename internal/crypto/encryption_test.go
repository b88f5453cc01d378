package crypto

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/models"
)

type fakeDataKeys struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDataKeys) EncryptedDataKey(context.Context) (models.EncryptedDataKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.EncryptedDataKey{}, f.err
	}
	f.calls++
	return models.EncryptedDataKey{
		KeyID:      fmt.Sprintf("key-%d", f.calls),
		Plaintext:  testKey,
		Ciphertext: base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("wrapped-%d", f.calls))),
	}, nil
}

func (f *fakeDataKeys) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestEncryptRotatesKeyAfterMaxUsage(t *testing.T) {
	keys := &fakeDataKeys{}
	svc := NewEncryptionService(keys, 10, 12)

	usage := map[string]int{}
	for i := 0; i < 105; i++ {
		res, err := svc.Encrypt(context.Background(), "100.00")
		require.NoError(t, err)
		usage[res.EncryptingKeyID]++
	}

	assert.Equal(t, 11, keys.Calls())
	for id, n := range usage {
		assert.LessOrEqual(t, n, 10, id)
	}
}

func TestEncryptOutput(t *testing.T) {
	svc := NewEncryptionService(&fakeDataKeys{}, 10, 12)

	res, err := svc.Encrypt(context.Background(), "1234.56")
	require.NoError(t, err)

	assert.Equal(t, "key-1", res.EncryptingKeyID)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("wrapped-1")), res.EncryptedDataKey)

	iv, err := base64.StdEncoding.DecodeString(res.InitialisationVector)
	require.NoError(t, err)
	assert.Len(t, iv, 12)

	ciphertext, err := base64.StdEncoding.DecodeString(res.CipherText)
	require.NoError(t, err)
	plaintext, err := openGCM(testKey, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "1234.56", string(plaintext))

	other, err := svc.Encrypt(context.Background(), "1234.56")
	require.NoError(t, err)
	assert.NotEqual(t, res.InitialisationVector, other.InitialisationVector)
	assert.Equal(t, res.EncryptedDataKey, other.EncryptedDataKey)
}

func TestEncryptConcurrentNeverExceedsUsage(t *testing.T) {
	keys := &fakeDataKeys{}
	svc := NewEncryptionService(keys, 7, 12)

	var mu sync.Mutex
	usage := map[string]int{}

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 70; i++ {
				res, err := svc.Encrypt(context.Background(), "x")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				usage[res.EncryptingKeyID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, keys.Calls())
	for id, n := range usage {
		assert.Equal(t, 7, n, id)
	}
}

func TestEncryptKMSFailureIsFatal(t *testing.T) {
	svc := NewEncryptionService(&fakeDataKeys{err: errors.New("kms down")}, 10, 12)

	_, err := svc.Encrypt(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, apperrors.IsServiceUnavailable(err))
	assert.Contains(t, err.Error(), "kms down")
}
