package config

import (
	"time"

	"claimant-consumer/pkg/retry"
)

type Config struct {
	Server         ServerConfig
	Logging        LoggingConfig
	Kafka          KafkaConfig
	DKS            DKSConfig
	AWS            AWSConfig
	Cipher         CipherConfig
	Security       SecurityConfig
	Validation     ValidationConfig
	Source         SourceConfig
	Sink           SinkConfig
	Database       DatabaseConfig
	Metrics        MetricsConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type KafkaConfig struct {
	Brokers                []string      `mapstructure:"brokers"`
	GroupID                string        `mapstructure:"group_id"`
	TopicRegex             string        `mapstructure:"topic_regex"`
	PollDuration           time.Duration `mapstructure:"poll_duration"`
	MaxPollRecords         int           `mapstructure:"max_poll_records"`
	FetchMaxBytes          int           `mapstructure:"fetch_max_bytes"`
	MaxPartitionFetchBytes int           `mapstructure:"max_partition_fetch_bytes"`
	SubscribeRetryDelay    time.Duration `mapstructure:"subscribe_retry_delay"`
	MetadataRefresh        time.Duration `mapstructure:"metadata_refresh"`
	DLQTopic               string        `mapstructure:"dlq_topic"`
	UseTLS                 bool          `mapstructure:"use_tls"`
}

type DKSConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

type AWSConfig struct {
	Region            string      `mapstructure:"region"`
	Endpoint          string      `mapstructure:"endpoint"`
	SaltParameterName string      `mapstructure:"salt_parameter_name"`
	CMKAlias          string      `mapstructure:"cmk_alias"`
	DataKeySpec       string      `mapstructure:"data_key_spec"`
	KMSRetry          RetryConfig `mapstructure:"kms_retry"`
	SSMRetry          RetryConfig `mapstructure:"ssm_retry"`
	SecretsRetry      RetryConfig `mapstructure:"secrets_retry"`
}

type CipherConfig struct {
	MaxKeyUsage              int `mapstructure:"max_key_usage"`
	InitialisationVectorSize int `mapstructure:"initialisation_vector_size"`
}

// SecurityConfig points at the PEM files used for mutual TLS towards the
// data key service. All empty disables client certificates.
type SecurityConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

type ValidationConfig struct {
	SchemaLocation string `mapstructure:"schema_location"`
}

type SourceConfig struct {
	ClaimantTopic  string        `mapstructure:"claimant_topic"`
	ContractTopic  string        `mapstructure:"contract_topic"`
	StatementTopic string        `mapstructure:"statement_topic"`
	Topics         []TopicConfig `mapstructure:"topics"`
}

// TopicConfig holds the per-topic settings. Topic names contain dots, so
// they are list entries rather than map keys.
type TopicConfig struct {
	Name        string   `mapstructure:"name"`
	IDField     string   `mapstructure:"id_field"`
	Table       string   `mapstructure:"table"`
	NaturalID   string   `mapstructure:"natural_id"`
	FilterRules []string `mapstructure:"filter_rules"`
}

type SinkConfig struct {
	Type string `mapstructure:"type"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	PasswordSecretName string `mapstructure:"password_secret_name"`
	DBName             string `mapstructure:"dbname"`
	SSLMode            string `mapstructure:"sslmode"`
}

type MetricsConfig struct {
	Pushgateway PushgatewayConfig `mapstructure:"pushgateway"`
}

type PushgatewayConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url"`
	Job              string        `mapstructure:"job"`
	Instance         string        `mapstructure:"instance"`
	Interval         time.Duration `mapstructure:"interval"`
	DeleteOnShutdown bool          `mapstructure:"delete_on_shutdown"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		Multiplier:      c.Multiplier,
		MaxElapsedTime:  c.MaxElapsedTime,
	}
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// SourceTopics returns the configured source topics in claimant, contract,
// statement order.
func (c SourceConfig) SourceTopics() []string {
	return []string{c.ClaimantTopic, c.ContractTopic, c.StatementTopic}
}

// Topic returns the settings for the named topic.
func (c SourceConfig) Topic(name string) (TopicConfig, bool) {
	for _, t := range c.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return TopicConfig{}, false
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
