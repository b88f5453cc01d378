package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"claimant-consumer/internal/broker"
	"claimant-consumer/internal/config"
	"claimant-consumer/internal/logger"
)

// Base owns the pieces every run needs regardless of the configured sink.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.LogConsumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker creates the log consumer and the producer shared by the dead
// letter and queue sinks. tlsConfig may be nil.
func (b *Base) InitBroker(tlsConfig *tls.Config) {
	b.Producer = broker.NewKafkaProducer(b.Config.Kafka, tlsConfig, b.Logger)
	b.Consumer = broker.NewKafkaConsumer(b.Config.Kafka, tlsConfig, b.Logger)
}

// closeBroker leaves the consumer group before flushing the producer.
func (b *Base) closeBroker() error {
	var errs []error
	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}
	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown releases the broker clients and then runs extra, if any. It
// always runs every step and returns the joined failures.
func (b *Base) Shutdown(ctx context.Context, extra func(ctx context.Context) error) error {
	b.Logger.Info("Shutting down application...")

	err := b.closeBroker()
	if extra != nil {
		err = errors.Join(err, extra(ctx))
	}
	if err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
