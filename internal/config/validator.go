package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"claimant-consumer/internal/constants"
	"claimant-consumer/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateKafka(cfg.Kafka); err != nil {
		errs = append(errs, err)
	}

	if err := validateDKS(cfg.DKS); err != nil {
		errs = append(errs, err)
	}

	if err := validateCipher(cfg.Cipher); err != nil {
		errs = append(errs, err)
	}

	if err := validateSource(cfg.Source); err != nil {
		errs = append(errs, err)
	}

	if err := validateSink(cfg.Sink, cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateSecurity(cfg.Security); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}
	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.TopicRegex == "" {
		return &ValidationError{
			Field:   "kafka.topic_regex",
			Message: "topic inclusion pattern is required",
		}
	}

	if _, err := regexp.Compile(cfg.TopicRegex); err != nil {
		return &ValidationError{
			Field:   "kafka.topic_regex",
			Message: fmt.Sprintf("invalid pattern: %v", err),
		}
	}

	if cfg.PollDuration <= 0 {
		return &ValidationError{
			Field:   "kafka.poll_duration",
			Message: "poll duration must be positive",
		}
	}

	if cfg.MaxPollRecords <= 0 {
		return &ValidationError{
			Field:   "kafka.max_poll_records",
			Message: "max_poll_records must be positive",
		}
	}

	if cfg.DLQTopic == "" {
		return &ValidationError{
			Field:   "kafka.dlq_topic",
			Message: "dead letter topic is required",
		}
	}

	return nil
}

func validateDKS(cfg DKSConfig) error {
	if cfg.URL == "" {
		return &ValidationError{
			Field:   "dks.url",
			Message: "data key service URL is required",
		}
	}

	if u, err := url.Parse(cfg.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{
			Field:   "dks.url",
			Message: fmt.Sprintf("invalid URL: %s", cfg.URL),
		}
	}

	return validateRetry("dks.retry", cfg.Retry)
}

func validateRetry(field string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 {
		return &ValidationError{
			Field:   field + ".max_attempts",
			Message: "max_attempts must be at least 1",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   field + ".initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   field + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   field + ".multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateCipher(cfg CipherConfig) error {
	if cfg.MaxKeyUsage < 1 {
		return &ValidationError{
			Field:   "cipher.max_key_usage",
			Message: "max_key_usage must be at least 1",
		}
	}

	if cfg.InitialisationVectorSize < 12 {
		return &ValidationError{
			Field:   "cipher.initialisation_vector_size",
			Message: "initialisation vector must be at least 12 bytes",
		}
	}

	return nil
}

func validateSource(cfg SourceConfig) error {
	for _, topic := range cfg.SourceTopics() {
		if topic == "" {
			return &ValidationError{
				Field:   "source",
				Message: "claimant, contract and statement topics are required",
			}
		}
	}

	for i, t := range cfg.Topics {
		if t.Name == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("source.topics[%d].name", i),
				Message: "topic name is required",
			}
		}
		if t.IDField == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("source.topics[%d].id_field", i),
				Message: "id field is required",
			}
		}
	}

	return validateFilterRules(cfg.Topics)
}

func validateFilterRules(topics []TopicConfig) error {
	var eval *cel.Evaluator
	for i, t := range topics {
		for j, rule := range t.FilterRules {
			if eval == nil {
				var err error
				if eval, err = cel.NewEvaluator(); err != nil {
					return err
				}
			}
			if err := eval.ValidateFilterExpression(rule); err != nil {
				return &ValidationError{
					Field:   fmt.Sprintf("source.topics[%d].filter_rules[%d]", i, j),
					Message: err.Error(),
				}
			}
		}
	}
	return nil
}

func validateSink(cfg SinkConfig, db DatabaseConfig) error {
	switch cfg.Type {
	case constants.SinkTypeConsole, constants.SinkTypeQueue:
		return nil
	case constants.SinkTypePostgres:
		return validatePostgres(db.Postgres)
	default:
		return &ValidationError{
			Field: "sink.type",
			Message: fmt.Sprintf("unknown sink type: %s (supported: %s, %s, %s)",
				cfg.Type, constants.SinkTypeConsole, constants.SinkTypePostgres, constants.SinkTypeQueue),
		}
	}
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateSecurity(cfg SecurityConfig) error {
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return &ValidationError{
			Field:   "security",
			Message: "cert_file and key_file must be set together",
		}
	}
	return nil
}
