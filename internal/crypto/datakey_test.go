package crypto

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/circuitbreaker"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/retry"
)

func testPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

type dksServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newDKSServer(t *testing.T, status int) *dksServer {
	t.Helper()
	s := &dksServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/datakey/actions/decrypt", r.URL.Path)
		assert.Equal(t, "arn:aws:kms:eu-west-2:123:key/abc", r.URL.Query().Get("keyId"))
		assert.NotEmpty(t, r.URL.Query().Get("correlationId"))
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)

		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(map[string]string{
				"dataKeyEncryptionKeyId": "arn:aws:kms:eu-west-2:123:key/abc",
				"plaintextDataKey":       "plain-" + string(body),
				"ciphertextDataKey":      string(body),
			})
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestDataKeyClient(url string, attempts int) *DataKeyClient {
	return NewDataKeyClient(http.DefaultClient, url, testPolicy(attempts), nil, logger.NopLogger())
}

const testKeyID = "arn:aws:kms:eu-west-2:123:key/abc"

func TestDecryptDataKeySuccessIsCached(t *testing.T) {
	server := newDKSServer(t, http.StatusOK)
	client := newTestDataKeyClient(server.URL, 5)

	for i := 0; i < 10; i++ {
		plaintext, err := client.DecryptDataKey(context.Background(), testKeyID, "wrapped")
		require.NoError(t, err)
		assert.Equal(t, "plain-wrapped", plaintext)
	}
	assert.Equal(t, int32(1), server.calls.Load())

	_, err := client.DecryptDataKey(context.Background(), testKeyID, "other")
	require.NoError(t, err)
	assert.Equal(t, int32(2), server.calls.Load())
}

func TestDecryptDataKeyConcurrentMissesShareOneCall(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		json.NewEncoder(w).Encode(map[string]string{"plaintextDataKey": "plain"})
	}))
	defer server.Close()

	client := newTestDataKeyClient(server.URL, 5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plaintext, err := client.DecryptDataKey(context.Background(), testKeyID, "wrapped")
			assert.NoError(t, err)
			assert.Equal(t, "plain", plaintext)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestDecryptDataKeyDecline(t *testing.T) {
	server := newDKSServer(t, http.StatusBadRequest)
	client := newTestDataKeyClient(server.URL, 5)

	declinesBefore := testutil.ToFloat64(metrics.DataKeyDeclinesTotal)
	retriesBefore := testutil.ToFloat64(metrics.RemoteRetriesTotal.WithLabelValues(metrics.DependencyDKS))

	_, err := client.DecryptDataKey(context.Background(), testKeyID, "wrapped")

	var decline *DataKeyDecline
	require.True(t, errors.As(err, &decline))
	assert.Equal(t, http.StatusBadRequest, decline.StatusCode)
	assert.Equal(t, testKeyID, decline.KeyID)
	assert.Equal(t, "wrapped", decline.Ciphertext)
	assert.False(t, apperrors.IsServiceUnavailable(err))

	assert.Equal(t, int32(1), server.calls.Load())
	assert.Equal(t, declinesBefore+1, testutil.ToFloat64(metrics.DataKeyDeclinesTotal))
	assert.Equal(t, retriesBefore, testutil.ToFloat64(metrics.RemoteRetriesTotal.WithLabelValues(metrics.DependencyDKS)))
}

func TestDecryptDataKeyUnavailable(t *testing.T) {
	server := newDKSServer(t, http.StatusServiceUnavailable)
	client := newTestDataKeyClient(server.URL, 4)

	retriesBefore := testutil.ToFloat64(metrics.RemoteRetriesTotal.WithLabelValues(metrics.DependencyDKS))
	failuresBefore := testutil.ToFloat64(metrics.RemoteFailuresTotal.WithLabelValues(metrics.DependencyDKS))

	_, err := client.DecryptDataKey(context.Background(), testKeyID, "wrapped")

	require.Error(t, err)
	assert.True(t, apperrors.IsServiceUnavailable(err))
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, int32(4), server.calls.Load())
	assert.Equal(t, retriesBefore+3, testutil.ToFloat64(metrics.RemoteRetriesTotal.WithLabelValues(metrics.DependencyDKS)))
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(metrics.RemoteFailuresTotal.WithLabelValues(metrics.DependencyDKS)))

	// failures are not cached
	_, err = client.DecryptDataKey(context.Background(), testKeyID, "wrapped")
	require.Error(t, err)
	assert.Equal(t, int32(8), server.calls.Load())
}

func TestDecryptDataKeyRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"plaintextDataKey": "plain"})
	}))
	defer server.Close()

	client := newTestDataKeyClient(server.URL, 5)
	plaintext, err := client.DecryptDataKey(context.Background(), testKeyID, "wrapped")
	require.NoError(t, err)
	assert.Equal(t, "plain", plaintext)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDataKeyBreakerIgnoresDeclines(t *testing.T) {
	server := newDKSServer(t, http.StatusBadRequest)

	cfg := circuitbreaker.DefaultConfig("dks-declines")
	cfg.MinRequests = 1
	breaker := circuitbreaker.NewWrapper(DataKeyBreakerConfig(cfg))
	client := NewDataKeyClient(http.DefaultClient, server.URL, testPolicy(1), breaker, logger.NopLogger())
	failures := metrics.CircuitBreakerFailures.WithLabelValues("dks-declines")
	before := testutil.ToFloat64(failures)

	for i := 0; i < 5; i++ {
		_, err := client.DecryptDataKey(context.Background(), testKeyID, "wrapped")
		var decline *DataKeyDecline
		require.True(t, errors.As(err, &decline))
	}
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
	assert.Equal(t, before, testutil.ToFloat64(failures))
}
