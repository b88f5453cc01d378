package crypto

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/sync/singleflight"

	"claimant-consumer/internal/logger"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/retry"
)

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SaltRepository serves the nino hashing salt from the parameter store.
// The first successful fetch is kept for the lifetime of the process.
type SaltRepository struct {
	client SSMAPI
	name   string
	policy retry.Policy
	logger logger.Logger

	salt  atomic.Pointer[string]
	group singleflight.Group
}

func NewSaltRepository(client SSMAPI, name string, policy retry.Policy, log logger.Logger) *SaltRepository {
	return &SaltRepository{
		client: client,
		name:   name,
		policy: policy,
		logger: log,
	}
}

func (r *SaltRepository) Salt(ctx context.Context) (string, error) {
	if s := r.salt.Load(); s != nil {
		return *s, nil
	}

	v, err, _ := r.group.Do(r.name, func() (interface{}, error) {
		if s := r.salt.Load(); s != nil {
			return *s, nil
		}
		salt, err := r.fetch(ctx)
		if err != nil {
			return "", err
		}
		r.salt.Store(&salt)
		return salt, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *SaltRepository) fetch(ctx context.Context) (string, error) {
	out, err := retry.Do(ctx, r.policy, func() (*ssm.GetParameterOutput, error) {
		return r.client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(r.name),
			WithDecryption: aws.Bool(true),
		})
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRemoteRetry(metrics.DependencySSM)
		r.logger.WarnwCtx(ctx, "Retrying salt parameter fetch",
			"attempt", attempt,
			"next_delay", nextDelay,
			"parameter", r.name,
			"error", err)
	})
	if err != nil {
		metrics.IncRemoteFailure(metrics.DependencySSM)
		return "", apperrors.ErrServiceUnavailable.
			WithDetail("service", metrics.DependencySSM).
			WithCause(fmt.Errorf("failed to fetch salt parameter %s: %w", r.name, err))
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		metrics.IncRemoteFailure(metrics.DependencySSM)
		return "", apperrors.ErrServiceUnavailable.
			WithDetail("service", metrics.DependencySSM).
			WithCause(fmt.Errorf("salt parameter %s has no value", r.name))
	}
	return *out.Parameter.Value, nil
}

// SecretRepository reads named secrets. Values are not cached.
type SecretRepository struct {
	client SecretsManagerAPI
	policy retry.Policy
	logger logger.Logger
}

func NewSecretRepository(client SecretsManagerAPI, policy retry.Policy, log logger.Logger) *SecretRepository {
	return &SecretRepository{
		client: client,
		policy: policy,
		logger: log,
	}
}

func (r *SecretRepository) Secret(ctx context.Context, name string) (string, error) {
	out, err := retry.Do(ctx, r.policy, func() (*secretsmanager.GetSecretValueOutput, error) {
		return r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(name),
		})
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRemoteRetry(metrics.DependencySecretsManager)
		r.logger.WarnwCtx(ctx, "Retrying secret fetch",
			"attempt", attempt,
			"next_delay", nextDelay,
			"secret", name,
			"error", err)
	})
	if err != nil {
		metrics.IncRemoteFailure(metrics.DependencySecretsManager)
		return "", fmt.Errorf("failed to fetch secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		metrics.IncRemoteFailure(metrics.DependencySecretsManager)
		return "", fmt.Errorf("secret %s has no string value", name)
	}
	return *out.SecretString, nil
}
