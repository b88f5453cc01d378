package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

// NewKafkaProducer builds a synchronous writer. Every message names its
// own topic.
func NewKafkaProducer(cfg config.KafkaConfig, tlsConfig *tls.Config, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
		Transport:              NewTransport(tlsConfig),
		ErrorLogger:            errorLogger(log),
	}
	return &KafkaProducer{writer: w, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, messages ...kafka.Message) error {
	if len(messages) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for i := range messages {
		messages[i].Headers = tracing.InjectTraceContext(ctx, messages[i].Headers)
		if messages[i].Time.IsZero() {
			messages[i].Time = time.Now()
		}
		counts[messages[i].Topic]++
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, messages...)
	for topic, n := range counts {
		metrics.ObserveKafkaWriteDuration(topic, time.Since(start))
		if err == nil {
			metrics.AddKafkaMessagesWritten(topic, n)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to write kafka messages: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
