package crypto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/circuitbreaker"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/retry"
)

const decryptPath = "/datakey/actions/decrypt"

// DataKeyDecline is returned when the data key service refuses to decrypt a
// key. It is a per-record failure, never retried.
type DataKeyDecline struct {
	StatusCode int
	KeyID      string
	Ciphertext string
}

func (d *DataKeyDecline) Error() string {
	return fmt.Sprintf("data key service declined key %s with status %d", d.KeyID, d.StatusCode)
}

type dataKeyResponse struct {
	DataKeyEncryptionKeyID string `json:"dataKeyEncryptionKeyId"`
	PlaintextDataKey       string `json:"plaintextDataKey"`
	CiphertextDataKey      string `json:"ciphertextDataKey"`
}

type dataKeyCacheKey struct {
	keyID      string
	ciphertext string
}

// DataKeyClient unwraps encrypted data keys through the data key service.
// Successful results are cached for the lifetime of the process and
// concurrent misses for the same key share one remote call.
type DataKeyClient struct {
	httpClient *http.Client
	baseURL    string
	policy     retry.Policy
	breaker    *circuitbreaker.Wrapper
	logger     logger.Logger

	cache sync.Map
	group singleflight.Group
}

func NewDataKeyClient(httpClient *http.Client, baseURL string, policy retry.Policy, breaker *circuitbreaker.Wrapper, log logger.Logger) *DataKeyClient {
	return &DataKeyClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		policy:     policy,
		breaker:    breaker,
		logger:     log,
	}
}

// DecryptDataKey returns the plaintext data key. A *DataKeyDecline error is
// a per-record failure; any other error means the service stayed
// unavailable for the whole retry budget.
func (c *DataKeyClient) DecryptDataKey(ctx context.Context, keyID, ciphertext string) (string, error) {
	key := dataKeyCacheKey{keyID: keyID, ciphertext: ciphertext}
	if v, ok := c.cache.Load(key); ok {
		return v.(string), nil
	}

	v, err, _ := c.group.Do(keyID+"\x00"+ciphertext, func() (interface{}, error) {
		if v, ok := c.cache.Load(key); ok {
			return v.(string), nil
		}

		plaintext, err := c.decryptWithRetry(ctx, keyID, ciphertext)
		if err != nil {
			return "", err
		}
		c.cache.Store(key, plaintext)
		return plaintext, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *DataKeyClient) decryptWithRetry(ctx context.Context, keyID, ciphertext string) (string, error) {
	plaintext, err := retry.Do(ctx, c.policy, func() (string, error) {
		return circuitbreaker.Execute(ctx, c.breaker, func() (string, error) {
			return c.decrypt(ctx, keyID, ciphertext)
		})
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRemoteRetry(metrics.DependencyDKS)
		c.logger.WarnwCtx(ctx, "Retrying data key service request",
			"attempt", attempt,
			"next_delay", nextDelay,
			"encrypting_key_id", keyID,
			"error", err)
	})
	if err == nil {
		return plaintext, nil
	}

	var decline *DataKeyDecline
	if errors.As(err, &decline) {
		metrics.IncDataKeyDecline()
		return "", decline
	}

	metrics.IncRemoteFailure(metrics.DependencyDKS)
	return "", apperrors.ErrServiceUnavailable.
		WithDetail("service", metrics.DependencyDKS).
		WithDetail("encrypting_key_id", keyID).
		WithCause(err)
}

func (c *DataKeyClient) decrypt(ctx context.Context, keyID, ciphertext string) (string, error) {
	correlationID := uuid.New().String()
	endpoint := fmt.Sprintf("%s%s?keyId=%s&correlationId=%s",
		c.baseURL, decryptPath, url.QueryEscape(keyID), correlationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(ciphertext))
	if err != nil {
		return "", retry.NewFatalError(fmt.Errorf("failed to build data key request: %w", err))
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Data key service request failed",
			"correlation_id", correlationID,
			"encrypting_key_id", keyID,
			"error", err)
		return "", fmt.Errorf("data key service request %s failed: %w", correlationID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body dataKeyResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("failed to decode data key service response %s: %w", correlationID, err)
		}
		return body.PlaintextDataKey, nil
	case http.StatusBadRequest:
		io.Copy(io.Discard, resp.Body)
		c.logger.ErrorwCtx(ctx, "Data key service declined decryption",
			"status_code", resp.StatusCode,
			"correlation_id", correlationID,
			"encrypting_key_id", keyID,
			"encrypted_key", ciphertext)
		return "", retry.NewFatalError(&DataKeyDecline{
			StatusCode: resp.StatusCode,
			KeyID:      keyID,
			Ciphertext: ciphertext,
		})
	default:
		io.Copy(io.Discard, resp.Body)
		c.logger.ErrorwCtx(ctx, "Data key service error",
			"status_code", resp.StatusCode,
			"correlation_id", correlationID,
			"encrypting_key_id", keyID)
		return "", fmt.Errorf("data key service request %s returned %d", correlationID, resp.StatusCode)
	}
}
