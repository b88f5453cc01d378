package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimant-consumer/internal/logger"
)

type recordingLogger struct {
	logger.Logger
	errors []string
}

func (l *recordingLogger) Errorw(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func TestErrorLogger(t *testing.T) {
	log := &recordingLogger{Logger: logger.NopLogger()}

	errorLogger(log).Printf("failed to dial %s after %d attempts", "broker-1:9092", 3)

	require.Len(t, log.errors, 1)
	assert.Equal(t, "kafka: failed to dial broker-1:9092 after 3 attempts", log.errors[0])
}

func TestNewDialerAndTransport(t *testing.T) {
	d := NewDialer(nil)
	assert.Nil(t, d.TLS)
	assert.True(t, d.DualStack)

	tr := NewTransport(nil)
	assert.NotNil(t, tr.Dial)
	assert.Nil(t, tr.TLS)
}
