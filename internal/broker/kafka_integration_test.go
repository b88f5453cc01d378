//go:build integration

package broker

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/models"
)

const containerStartupTimeout = 90 * time.Second

func startKafka(t *testing.T) []string {
	t.Helper()

	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	ctx, cancel := context.WithTimeout(context.Background(), containerStartupTimeout)
	defer cancel()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("claimant-test"))
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}
	return brokers
}

func createTopic(t *testing.T, brokers []string, topic string) {
	t.Helper()

	client := &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: 10 * time.Second}
	resp, err := client.CreateTopics(context.Background(), &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}},
	})
	require.NoError(t, err)
	if err := resp.Errors[topic]; err != nil {
		t.Fatalf("failed to create topic %s: %v", topic, err)
	}
}

func TestKafkaConsumer_Integration(t *testing.T) {
	brokers := startKafka(t)
	ctx := context.Background()
	log := logger.NopLogger()

	topic := "db.core.claimant"
	createTopic(t, brokers, topic)
	createTopic(t, brokers, "db.core.agent")

	producer := NewKafkaProducer(config.KafkaConfig{Brokers: brokers}, nil, log)
	defer producer.Close()

	var msgs []kafka.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, kafka.Message{
			Topic: topic,
			Key:   []byte(fmt.Sprintf("key-%d", i)),
			Value: []byte(fmt.Sprintf(`{"n":%d}`, i)),
		})
	}
	require.NoError(t, producer.Publish(ctx, msgs...))

	cfg := config.KafkaConfig{
		Brokers:                brokers,
		GroupID:                "claimant-consumer-it",
		MaxPollRecords:         100,
		FetchMaxBytes:          1024 * 1024,
		MaxPartitionFetchBytes: 1024 * 1024,
		MetadataRefresh:        time.Second,
	}
	consumer := NewKafkaConsumer(cfg, nil, log)
	defer consumer.Close()

	subscribed, err := consumer.Subscribe(ctx, regexp.MustCompile(`db\.core\.(claimant|contract)`))
	require.NoError(t, err)
	require.True(t, subscribed)

	var records []*models.SourceRecord
	deadline := time.Now().Add(60 * time.Second)
	for len(records) < len(msgs) && time.Now().Before(deadline) {
		batch, err := consumer.Poll(ctx, 2*time.Second)
		require.NoError(t, err)
		records = append(records, batch...)
	}
	require.Len(t, records, len(msgs))
	for i, r := range records {
		assert.Equal(t, topic, r.Topic)
		assert.Equal(t, int64(i), r.Offset)
	}

	tp := models.TopicPartition{Topic: topic, Partition: 0}
	_, ok, err := consumer.Committed(ctx, tp)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, consumer.Commit(ctx, tp, 3))
	offset, ok, err := consumer.Committed(ctx, tp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), offset)

	require.NoError(t, consumer.Seek(ctx, tp, offset))
	replayed, err := consumer.Poll(ctx, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Equal(t, int64(3), replayed[0].Offset)
}
