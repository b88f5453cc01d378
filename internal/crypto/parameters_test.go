package crypto

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimant-consumer/internal/logger"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
)

type fakeSSM struct {
	calls    atomic.Int32
	failures int32
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, errors.New("throttled")
	}
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("decryption not requested")
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String("SALT")},
	}, nil
}

func TestSaltIsCached(t *testing.T) {
	client := &fakeSSM{failures: 1}
	repo := NewSaltRepository(client, "/salt", testPolicy(3), logger.NopLogger())

	retriesBefore := testutil.ToFloat64(metrics.RemoteRetriesTotal.WithLabelValues(metrics.DependencySSM))

	for i := 0; i < 5; i++ {
		salt, err := repo.Salt(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "SALT", salt)
	}

	assert.Equal(t, int32(2), client.calls.Load())
	assert.Equal(t, retriesBefore+1, testutil.ToFloat64(metrics.RemoteRetriesTotal.WithLabelValues(metrics.DependencySSM)))
}

func TestSaltExhaustion(t *testing.T) {
	client := &fakeSSM{failures: 100}
	repo := NewSaltRepository(client, "/salt", testPolicy(3), logger.NopLogger())

	_, err := repo.Salt(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsServiceUnavailable(err))
	assert.Equal(t, int32(3), client.calls.Load())
}

type fakeSecrets struct {
	calls atomic.Int32
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls.Add(1)
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("pw-" + aws.ToString(in.SecretId))}, nil
}

func TestSecretIsNotCached(t *testing.T) {
	client := &fakeSecrets{}
	repo := NewSecretRepository(client, testPolicy(3), logger.NopLogger())

	for i := 0; i < 2; i++ {
		secret, err := repo.Secret(context.Background(), "db")
		require.NoError(t, err)
		assert.Equal(t, "pw-db", secret)
	}
	assert.Equal(t, int32(2), client.calls.Load())
}

type fakeKMS struct {
	calls    int
	failures int
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("kms unavailable")
	}
	if aws.ToString(in.KeyId) != "alias/test" || in.KeySpec != types.DataKeySpecAes256 {
		return nil, errors.New("unexpected request")
	}
	return &kms.GenerateDataKeyOutput{
		KeyId:          aws.String("arn:key"),
		Plaintext:      testKey,
		CiphertextBlob: []byte("blob"),
	}, nil
}

func TestKMSDataKeyRepository(t *testing.T) {
	client := &fakeKMS{failures: 2}
	repo := NewKMSDataKeyRepository(client, "alias/test", "AES_256", testPolicy(5), logger.NopLogger())

	retriesBefore := testutil.ToFloat64(metrics.RemoteRetriesTotal.WithLabelValues(metrics.DependencyKMS))

	key, err := repo.EncryptedDataKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "arn:key", key.KeyID)
	assert.Equal(t, testKey, key.Plaintext)
	assert.Equal(t, "YmxvYg==", key.Ciphertext)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, retriesBefore+2, testutil.ToFloat64(metrics.RemoteRetriesTotal.WithLabelValues(metrics.DependencyKMS)))
}

func TestKMSDataKeyRepositoryExhaustion(t *testing.T) {
	client := &fakeKMS{failures: 10}
	repo := NewKMSDataKeyRepository(client, "alias/test", "AES_256", testPolicy(3), logger.NopLogger())

	_, err := repo.EncryptedDataKey(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}
