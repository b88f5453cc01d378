package broker

import (
	"context"
	"regexp"
	"time"

	"github.com/segmentio/kafka-go"

	"claimant-consumer/pkg/models"
)

// LogConsumer is the subscription side of the log. Offsets are only ever
// committed explicitly.
type LogConsumer interface {
	// Subscribe makes the consumer follow every topic fully matching
	// pattern. It reports whether there is anything to consume.
	Subscribe(ctx context.Context, pattern *regexp.Regexp) (bool, error)
	// Poll returns the records that arrive within timeout.
	Poll(ctx context.Context, timeout time.Duration) ([]*models.SourceRecord, error)
	// Commit records offset as the next offset to read for tp.
	Commit(ctx context.Context, tp models.TopicPartition, offset int64) error
	// Committed returns the last committed offset for tp, and false when
	// there is none.
	Committed(ctx context.Context, tp models.TopicPartition) (int64, bool, error)
	// Seek moves the read position of tp.
	Seek(ctx context.Context, tp models.TopicPartition, offset int64) error
	Close() error
}

type Producer interface {
	Publish(ctx context.Context, messages ...kafka.Message) error
	Close() error
}
