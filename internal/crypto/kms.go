package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/retry"
)

type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
}

// KMSDataKeyRepository generates fresh envelope keys under a master key
// alias.
type KMSDataKeyRepository struct {
	client   KMSAPI
	cmkAlias string
	keySpec  types.DataKeySpec
	policy   retry.Policy
	logger   logger.Logger
}

func NewKMSDataKeyRepository(client KMSAPI, cmkAlias, keySpec string, policy retry.Policy, log logger.Logger) *KMSDataKeyRepository {
	return &KMSDataKeyRepository{
		client:   client,
		cmkAlias: cmkAlias,
		keySpec:  types.DataKeySpec(keySpec),
		policy:   policy,
		logger:   log,
	}
}

func (r *KMSDataKeyRepository) EncryptedDataKey(ctx context.Context) (models.EncryptedDataKey, error) {
	out, err := retry.Do(ctx, r.policy, func() (*kms.GenerateDataKeyOutput, error) {
		return r.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   aws.String(r.cmkAlias),
			KeySpec: r.keySpec,
		})
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRemoteRetry(metrics.DependencyKMS)
		r.logger.WarnwCtx(ctx, "Retrying data key generation",
			"attempt", attempt,
			"next_delay", nextDelay,
			"cmk_alias", r.cmkAlias,
			"error", err)
	})
	if err != nil {
		return models.EncryptedDataKey{}, fmt.Errorf("failed to generate data key with %s: %w", r.cmkAlias, err)
	}

	return models.EncryptedDataKey{
		KeyID:      aws.ToString(out.KeyId),
		Plaintext:  out.Plaintext,
		Ciphertext: base64.StdEncoding.EncodeToString(out.CiphertextBlob),
	}, nil
}
