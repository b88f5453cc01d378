package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff builds the exponential schedule for policy. Jitter is off so
// that the delay reported to OnRetry is the delay actually waited.
func newBackOff(policy Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.Multiplier = policy.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = policy.MaxElapsedTime
	exp.Reset()
	return exp
}

// CalculateBackoffDuration is the delay after the given zero based attempt.
func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt))
	if duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
