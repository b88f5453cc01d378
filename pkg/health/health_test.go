package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                  { return s.name }
func (s stubChecker) Check(_ context.Context) error { return s.err }

func TestCheckerRegistry_Check(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(stubChecker{name: "postgresql"})
	r.Register(stubChecker{name: "kafka"})

	h := r.Check(context.Background())
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Len(t, h.Checks, 2)

	r.Register(stubChecker{name: "dks", err: errors.New("connection refused")})
	h = r.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["dks"].Status)
	assert.Equal(t, "connection refused", h.Checks["dks"].Message)
	assert.Equal(t, StatusHealthy, h.Checks["kafka"].Status)
}

func TestCheckerRegistry_Handler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus Status
	}{
		{"healthy", nil, http.StatusOK, StatusHealthy},
		{"unhealthy", errors.New("down"), http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			r.Register(stubChecker{name: "kafka", err: tt.err})

			rec := httptest.NewRecorder()
			r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body Health
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}
}

type stubBreaker struct{ state gobreaker.State }

func (b stubBreaker) Name() string           { return "dks" }
func (b stubBreaker) State() gobreaker.State { return b.state }

func TestCircuitBreakerChecker(t *testing.T) {
	tests := []struct {
		state   gobreaker.State
		wantErr bool
	}{
		{gobreaker.StateClosed, false},
		{gobreaker.StateHalfOpen, false},
		{gobreaker.StateOpen, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			c := NewCircuitBreakerChecker(stubBreaker{state: tt.state})
			assert.Equal(t, "circuit_breaker_dks", c.Name())

			err := c.Check(context.Background())
			if tt.wantErr {
				assert.ErrorContains(t, err, "circuit breaker dks is open")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
