package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"claimant-consumer/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyTopicDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("kafka.group_id", constants.DefaultGroupID)
	viper.SetDefault("kafka.poll_duration", constants.DefaultPollDuration)
	viper.SetDefault("kafka.max_poll_records", constants.DefaultMaxPollRecords)
	viper.SetDefault("kafka.fetch_max_bytes", constants.DefaultFetchMaxBytes)
	viper.SetDefault("kafka.max_partition_fetch_bytes", constants.DefaultMaxPartitionFetchBytes)
	viper.SetDefault("kafka.subscribe_retry_delay", constants.DefaultSubscribeRetryDelay)
	viper.SetDefault("kafka.metadata_refresh", constants.DefaultMetadataRefresh)
	viper.SetDefault("kafka.dlq_topic", constants.DefaultDLQTopic)

	viper.SetDefault("dks.timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("dks.connect_timeout", constants.DefaultHTTPConnectTimeout)
	for _, prefix := range []string{"dks.retry", "aws.kms_retry", "aws.ssm_retry", "aws.secrets_retry"} {
		viper.SetDefault(prefix+".max_attempts", constants.DefaultRetryMaxAttempts)
		viper.SetDefault(prefix+".initial_interval", constants.DefaultRetryInitialInterval)
		viper.SetDefault(prefix+".max_interval", constants.DefaultRetryMaxInterval)
		viper.SetDefault(prefix+".multiplier", constants.DefaultRetryMultiplier)
	}

	viper.SetDefault("aws.region", "eu-west-2")
	viper.SetDefault("aws.salt_parameter_name", constants.DefaultSaltParameterName)
	viper.SetDefault("aws.cmk_alias", constants.DefaultCMKAlias)
	viper.SetDefault("aws.data_key_spec", constants.DefaultDataKeySpec)

	viper.SetDefault("cipher.max_key_usage", constants.DefaultMaxKeyUsage)
	viper.SetDefault("cipher.initialisation_vector_size", constants.DefaultInitialisationVectorSize)

	viper.SetDefault("source.claimant_topic", constants.DefaultClaimantTopic)
	viper.SetDefault("source.contract_topic", constants.DefaultContractTopic)
	viper.SetDefault("source.statement_topic", constants.DefaultStatementTopic)

	viper.SetDefault("sink.type", constants.SinkTypeConsole)

	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.sslmode", "disable")

	viper.SetDefault("metrics.pushgateway.job", constants.DefaultPushgatewayJob)
	viper.SetDefault("metrics.pushgateway.instance", constants.DefaultPushgatewayInstance)
	viper.SetDefault("metrics.pushgateway.interval", constants.DefaultPushInterval)

	viper.SetDefault("tracing.service_name", constants.ServiceName)
}

func bindEnvVariables() {
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	viper.BindEnv("kafka.topic_regex", "KAFKA_TOPIC_REGEX")
	viper.BindEnv("kafka.dlq_topic", "KAFKA_DLQ_TOPIC")

	viper.BindEnv("dks.url", "DKS_URL")

	viper.BindEnv("aws.region", "AWS_REGION")
	viper.BindEnv("aws.endpoint", "AWS_ENDPOINT")
	viper.BindEnv("aws.salt_parameter_name", "AWS_SALT_PARAMETER_NAME")
	viper.BindEnv("aws.cmk_alias", "AWS_CMK_ALIAS")

	viper.BindEnv("security.cert_file", "SECURITY_CERT_FILE")
	viper.BindEnv("security.key_file", "SECURITY_KEY_FILE")
	viper.BindEnv("security.ca_file", "SECURITY_CA_FILE")

	viper.BindEnv("sink.type", "SINK_TYPE")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.password_secret_name", "DATABASE_POSTGRES_PASSWORD_SECRET_NAME")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("metrics.pushgateway.enabled", "METRICS_PUSHGATEWAY_ENABLED")
	viper.BindEnv("metrics.pushgateway.url", "METRICS_PUSHGATEWAY_URL")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}

// applyTopicDefaults adds an entry for every source topic that is not
// listed and fills the blank fields of the ones that are.
func applyTopicDefaults(cfg *Config) {
	defaults := []TopicConfig{
		{
			Name:      cfg.Source.ClaimantTopic,
			IDField:   constants.DefaultClaimantIDField,
			Table:     constants.DefaultClaimantTable,
			NaturalID: constants.DefaultClaimantNaturalID,
		},
		{
			Name:      cfg.Source.ContractTopic,
			IDField:   constants.DefaultContractIDField,
			Table:     constants.DefaultContractTable,
			NaturalID: constants.DefaultContractNaturalID,
		},
		{
			Name:      cfg.Source.StatementTopic,
			IDField:   constants.DefaultStatementIDField,
			Table:     constants.DefaultStatementTable,
			NaturalID: constants.DefaultStatementNaturalID,
		},
	}

	for _, d := range defaults {
		idx := -1
		for i := range cfg.Source.Topics {
			if cfg.Source.Topics[i].Name == d.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			cfg.Source.Topics = append(cfg.Source.Topics, d)
			continue
		}

		t := &cfg.Source.Topics[idx]
		if t.IDField == "" {
			t.IDField = d.IDField
		}
		if t.Table == "" {
			t.Table = d.Table
		}
		if t.NaturalID == "" {
			t.NaturalID = d.NaturalID
		}
	}
}
