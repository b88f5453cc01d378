package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dependency label values for the remote services.
const (
	DependencyDKS            = "dks"
	DependencyKMS            = "kms"
	DependencySSM            = "ssm"
	DependencySecretsManager = "secretsmanager"
)

// Outcome label values for processed records.
const (
	OutcomeUpserted = "upserted"
	OutcomeDeleted  = "deleted"
	OutcomeFiltered = "filtered"
	OutcomeFailed   = "failed"
)

var (
	RecordsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimant_records_processed_total",
			Help: "Total number of records processed by outcome (count)",
		},
		[]string{"topic", "outcome"},
	)

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimant_validation_failures_total",
			Help: "Total number of records failing schema validation (count)",
		},
		[]string{"topic"},
	)

	DataKeyDeclinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimant_dks_decrypt_failures_total",
			Help: "Total number of data key decryptions declined by the data key service (count)",
		},
	)

	RemoteRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimant_remote_retries_total",
			Help: "Total number of retried calls to a remote dependency (count)",
		},
		[]string{"dependency"},
	)

	RemoteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimant_remote_failures_total",
			Help: "Total number of remote calls that failed after exhausting retries (count)",
		},
		[]string{"dependency"},
	)

	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimant_batches_total",
			Help: "Total number of partition batches processed (count)",
		},
		[]string{"topic", "status"},
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claimant_batch_duration_ms",
			Help:    "Processing duration of a partition batch in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"topic", "status"},
	)

	CommittedOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "claimant_committed_offset",
			Help: "Last committed offset per partition (offset)",
		},
		[]string{"topic", "partition"},
	)

	DatabaseRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimant_database_rows_total",
			Help: "Total number of rows written to the target database by operation (count)",
		},
		[]string{"topic", "operation"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claimant_database_query_duration_ms",
			Help:    "Duration of target database batches in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"topic", "operation"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimant_dlq_messages_total",
			Help: "Total number of records sent to the dead letter topic (count)",
		},
		[]string{"topic"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

// Collectors returns every collector owned by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RecordsProcessedTotal,
		ValidationFailuresTotal,
		DataKeyDeclinesTotal,
		RemoteRetriesTotal,
		RemoteFailuresTotal,
		BatchesTotal,
		BatchDuration,
		CommittedOffset,
		DatabaseRowsTotal,
		DatabaseQueryDuration,
		DLQMessagesTotal,
		KafkaMessagesReadTotal,
		KafkaMessagesWrittenTotal,
		KafkaWriteDuration,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	}
}

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(Collectors()...)
}

func IncRecordsProcessed(topic, outcome string, n int) {
	RecordsProcessedTotal.WithLabelValues(topic, outcome).Add(float64(n))
}

func IncValidationFailure(topic string) {
	ValidationFailuresTotal.WithLabelValues(topic).Inc()
}

func IncDataKeyDecline() {
	DataKeyDeclinesTotal.Inc()
}

func IncRemoteRetry(dependency string) {
	RemoteRetriesTotal.WithLabelValues(dependency).Inc()
}

func IncRemoteFailure(dependency string) {
	RemoteFailuresTotal.WithLabelValues(dependency).Inc()
}

func ObserveBatch(topic, status string, duration time.Duration) {
	BatchesTotal.WithLabelValues(topic, status).Inc()
	BatchDuration.WithLabelValues(topic, status).Observe(float64(duration.Milliseconds()))
}

func SetCommittedOffset(topic string, partition int, offset int64) {
	CommittedOffset.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Set(float64(offset))
}

func AddDatabaseRows(topic, operation string, n int) {
	DatabaseRowsTotal.WithLabelValues(topic, operation).Add(float64(n))
}

func ObserveDatabaseQueryDuration(topic, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(topic, operation).Observe(float64(duration.Milliseconds()))
}

func AddDLQMessages(topic string, n int) {
	DLQMessagesTotal.WithLabelValues(topic).Add(float64(n))
}

func AddKafkaMessagesRead(topic string, n int) {
	KafkaMessagesReadTotal.WithLabelValues(topic).Add(float64(n))
}

func AddKafkaMessagesWritten(topic string, n int) {
	KafkaMessagesWrittenTotal.WithLabelValues(topic).Add(float64(n))
}

func ObserveKafkaWriteDuration(topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}
