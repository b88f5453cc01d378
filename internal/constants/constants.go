package constants

import "time"

const (
	ServiceName = "claimant-consumer"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaDialTimeout  = 10 * time.Second
	// KafkaFetchLinger bounds how long a poll keeps draining a partition
	// once records have started to arrive.
	KafkaFetchLinger = 100 * time.Millisecond
)

const (
	DefaultGroupID                = "claimant-consumers"
	DefaultPollDuration           = 10 * time.Second
	DefaultMaxPollRecords         = 5000
	DefaultFetchMaxBytes          = 1024 * 1024
	DefaultMaxPartitionFetchBytes = 1024 * 1024
	DefaultSubscribeRetryDelay    = 5 * time.Second
	DefaultMetadataRefresh        = 30 * time.Second
	DefaultDLQTopic               = "dead.letter.queue"
	SuccessTopicSuffix            = ".success"
	DLQKeyPrefix                  = "claimant-consumer-reject-"
)

const (
	DefaultClaimantTopic  = "db.core.claimant"
	DefaultContractTopic  = "db.core.contract"
	DefaultStatementTopic = "db.core.statement"

	DefaultClaimantIDField  = "citizenId"
	DefaultContractIDField  = "contractId"
	DefaultStatementIDField = "statementId"
)

const (
	DefaultClaimantTable  = "claimant"
	DefaultContractTable  = "contract"
	DefaultStatementTable = "statement"

	DefaultClaimantNaturalID  = "citizen_id"
	DefaultContractNaturalID  = "contract_id"
	DefaultStatementNaturalID = "statement_id"
)

const (
	DefaultHTTPTimeout        = 10 * time.Second
	DefaultHTTPConnectTimeout = 5 * time.Second
)

const (
	DefaultSaltParameterName = "/ucfs/claimant-api/nino/salt"
	DefaultCMKAlias          = "alias/ucfs_etl_cmk"
	DefaultDataKeySpec       = "AES_256"
)

const (
	DefaultMaxKeyUsage              = 10000
	DefaultInitialisationVectorSize = 12
)

const (
	DefaultRetryMaxAttempts     = 5
	DefaultRetryInitialInterval = 1 * time.Second
	DefaultRetryMaxInterval     = 30 * time.Second
	DefaultRetryMultiplier      = 2.0
)

const (
	EpochTimestamp       = "1980-01-01T00:00:00.000+0000"
	TimestampSourceEpoch = "epoch"
)

const (
	SinkTypeConsole  = "console"
	SinkTypePostgres = "postgres"
	SinkTypeQueue    = "queue"
)

const (
	DefaultPushgatewayJob      = "claimant-consumer"
	DefaultPushgatewayInstance = "uckc"
	DefaultPushInterval        = 70 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)
