package broker

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/segmentio/kafka-go"

	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
)

// NewDialer returns the dialer used for group coordination and fetches.
// tlsConfig may be nil for plaintext brokers.
func NewDialer(tlsConfig *tls.Config) *kafka.Dialer {
	return &kafka.Dialer{
		Timeout:   constants.KafkaDialTimeout,
		DualStack: true,
		TLS:       tlsConfig,
	}
}

// NewTransport returns the transport used by the admin client and writers.
func NewTransport(tlsConfig *tls.Config) *kafka.Transport {
	return &kafka.Transport{
		Dial: (&net.Dialer{Timeout: constants.KafkaDialTimeout}).DialContext,
		TLS:  tlsConfig,
	}
}

func errorLogger(log logger.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...interface{}) {
		log.Errorw("kafka: " + fmt.Sprintf(msg, args...))
	})
}
