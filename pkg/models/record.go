package models

import (
	"fmt"
	"time"
)

// SourceRecord is one record as polled from the log. It is never mutated
// after poll; failures carry the same pointer to the dead-letter sink.
type SourceRecord struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte // nil when the record has a null value
	Timestamp time.Time
	Headers   map[string][]byte
}

func (r *SourceRecord) TopicPartition() TopicPartition {
	return TopicPartition{Topic: r.Topic, Partition: r.Partition}
}

// LogFields returns the record coordinates as structured log fields.
func (r *SourceRecord) LogFields() []interface{} {
	return []interface{}{
		"topic", r.Topic,
		"partition", r.Partition,
		"offset", r.Offset,
		"key", string(r.Key),
		"record_timestamp", r.Timestamp,
	}
}

type TopicPartition struct {
	Topic     string
	Partition int
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}
