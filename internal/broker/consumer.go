package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
)

// partitionReader is the part of *kafka.Reader a poll needs.
type partitionReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	SetOffset(offset int64) error
	Close() error
}

// KafkaConsumer follows a topic pattern through a consumer group. The group
// only hands out partition assignments and stores offsets; records are
// fetched by one reader per assigned partition so that each partition can
// be rewound on its own.
type KafkaConsumer struct {
	cfg     config.KafkaConfig
	dialer  *kafka.Dialer
	client  *kafka.Client
	logger  logger.Logger
	newRead func(tp models.TopicPartition, offset int64) (partitionReader, error)

	mu          sync.Mutex
	topics      []string
	lastRefresh time.Time
	group       *kafka.ConsumerGroup
	gen         *kafka.Generation
	genDone     chan struct{}
	readers     map[models.TopicPartition]partitionReader
}

func NewKafkaConsumer(cfg config.KafkaConfig, tlsConfig *tls.Config, log logger.Logger) *KafkaConsumer {
	c := &KafkaConsumer{
		cfg:    cfg,
		dialer: NewDialer(tlsConfig),
		client: &kafka.Client{
			Addr:      kafka.TCP(cfg.Brokers...),
			Timeout:   constants.KafkaDialTimeout,
			Transport: NewTransport(tlsConfig),
		},
		logger:  log,
		readers: make(map[models.TopicPartition]partitionReader),
	}
	c.newRead = c.newPartitionReader
	return c
}

func (c *KafkaConsumer) Subscribe(ctx context.Context, pattern *regexp.Regexp) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.group != nil && time.Since(c.lastRefresh) < c.cfg.MetadataRefresh {
		return true, nil
	}

	topics, err := c.matchingTopics(ctx, pattern)
	if err != nil {
		return c.group != nil, apperrors.ErrConsumer.WithCause(err)
	}
	c.lastRefresh = time.Now()

	if len(topics) == 0 {
		if c.group == nil {
			c.logger.InfowCtx(ctx, "No topics match subscription pattern", "pattern", pattern.String())
		}
		return c.group != nil, nil
	}
	if c.group != nil && slices.Equal(topics, c.topics) {
		return true, nil
	}

	c.logger.InfowCtx(ctx, "Subscribing to topics",
		"pattern", pattern.String(),
		"topics", topics,
		"group_id", c.cfg.GroupID)

	if err := c.closeGroup(); err != nil {
		c.logger.WarnwCtx(ctx, "Failed to close previous consumer group", "error", err)
	}

	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:          c.cfg.GroupID,
		Brokers:     c.cfg.Brokers,
		Dialer:      c.dialer,
		Topics:      topics,
		StartOffset: kafka.FirstOffset,
		ErrorLogger: errorLogger(c.logger),
	})
	if err != nil {
		return false, apperrors.ErrConsumer.WithCause(fmt.Errorf("failed to create consumer group: %w", err))
	}

	c.group = group
	c.topics = topics
	return true, nil
}

// matchingTopics lists the non-internal topics whose whole name matches
// pattern, sorted.
func (c *KafkaConsumer) matchingTopics(ctx context.Context, pattern *regexp.Regexp) ([]string, error) {
	resp, err := c.client.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return MatchTopics(resp.Topics, pattern), nil
}

// MatchTopics filters topics to those fully matched by pattern.
func MatchTopics(topics []kafka.Topic, pattern *regexp.Regexp) []string {
	var names []string
	for _, t := range topics {
		if t.Internal || t.Error != nil {
			continue
		}
		if FullMatch(pattern, t.Name) {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names
}

// FullMatch reports whether pattern matches the whole of s.
func FullMatch(pattern *regexp.Regexp, s string) bool {
	loc := pattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

func (c *KafkaConsumer) Poll(ctx context.Context, timeout time.Duration) ([]*models.SourceRecord, error) {
	readers, err := c.ensureGeneration(ctx)
	if err != nil {
		return nil, err
	}

	records, err := fetchRecords(ctx, readers, timeout, c.cfg.MaxPollRecords)
	if err != nil {
		return nil, apperrors.ErrConsumer.WithCause(err)
	}

	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Topic]++
	}
	for topic, n := range counts {
		metrics.AddKafkaMessagesRead(topic, n)
	}
	return records, nil
}

// ensureGeneration joins the group when there is no live generation and
// opens a reader for every assigned partition.
func (c *KafkaConsumer) ensureGeneration(ctx context.Context) (map[models.TopicPartition]partitionReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.group == nil {
		return nil, apperrors.ErrConsumer.WithCause(errors.New("poll before subscribe"))
	}

	if c.gen != nil {
		select {
		case <-c.genDone:
			c.logger.InfowCtx(ctx, "Consumer group rebalanced", "generation_id", c.gen.ID)
			c.closeReaders()
			c.gen = nil
		default:
			return c.snapshotReaders(), nil
		}
	}

	gen, err := c.group.Next(ctx)
	if err != nil {
		return nil, apperrors.ErrConsumer.WithCause(fmt.Errorf("failed to join consumer group: %w", err))
	}

	for topic, assignments := range gen.Assignments {
		for _, a := range assignments {
			tp := models.TopicPartition{Topic: topic, Partition: a.ID}
			reader, err := c.newRead(tp, a.Offset)
			if err != nil {
				c.closeReaders()
				return nil, apperrors.ErrConsumer.WithCause(err)
			}
			c.readers[tp] = reader
		}
	}

	done := make(chan struct{})
	gen.Start(func(genCtx context.Context) {
		<-genCtx.Done()
		close(done)
	})
	c.gen = gen
	c.genDone = done

	c.logger.InfowCtx(ctx, "Joined consumer group",
		"generation_id", gen.ID,
		"member_id", gen.MemberID,
		"partitions", len(c.readers))

	return c.snapshotReaders(), nil
}

func (c *KafkaConsumer) newPartitionReader(tp models.TopicPartition, offset int64) (partitionReader, error) {
	maxBytes := c.cfg.MaxPartitionFetchBytes
	if c.cfg.FetchMaxBytes > 0 && c.cfg.FetchMaxBytes < maxBytes {
		maxBytes = c.cfg.FetchMaxBytes
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		Topic:       tp.Topic,
		Partition:   tp.Partition,
		Dialer:      c.dialer,
		MinBytes:    1,
		MaxBytes:    maxBytes,
		StartOffset: kafka.FirstOffset,
		ErrorLogger: errorLogger(c.logger),
	})
	if err := reader.SetOffset(offset); err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to position reader for %s at %d: %w", tp, offset, err)
	}
	return reader, nil
}

func (c *KafkaConsumer) snapshotReaders() map[models.TopicPartition]partitionReader {
	out := make(map[models.TopicPartition]partitionReader, len(c.readers))
	for tp, r := range c.readers {
		out[tp] = r
	}
	return out
}

func (c *KafkaConsumer) Commit(ctx context.Context, tp models.TopicPartition, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen == nil {
		return apperrors.ErrConsumer.WithCause(fmt.Errorf("commit of %s without an active generation", tp))
	}
	if err := c.gen.CommitOffsets(map[string]map[int]int64{tp.Topic: {tp.Partition: offset}}); err != nil {
		return apperrors.ErrConsumer.WithCause(fmt.Errorf("failed to commit %s at %d: %w", tp, offset, err))
	}
	return nil
}

func (c *KafkaConsumer) Committed(ctx context.Context, tp models.TopicPartition) (int64, bool, error) {
	resp, err := c.client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: c.cfg.GroupID,
		Topics:  map[string][]int{tp.Topic: {tp.Partition}},
	})
	if err != nil {
		return 0, false, apperrors.ErrConsumer.WithCause(fmt.Errorf("failed to fetch committed offset for %s: %w", tp, err))
	}
	if resp.Error != nil {
		return 0, false, apperrors.ErrConsumer.WithCause(resp.Error)
	}

	for _, p := range resp.Topics[tp.Topic] {
		if p.Partition != tp.Partition {
			continue
		}
		if p.Error != nil {
			return 0, false, apperrors.ErrConsumer.WithCause(p.Error)
		}
		if p.CommittedOffset < 0 {
			return 0, false, nil
		}
		return p.CommittedOffset, true, nil
	}
	return 0, false, nil
}

func (c *KafkaConsumer) Seek(ctx context.Context, tp models.TopicPartition, offset int64) error {
	c.mu.Lock()
	reader, ok := c.readers[tp]
	c.mu.Unlock()

	if !ok {
		// Not assigned any more; the next owner starts from the committed offset.
		return nil
	}
	if err := reader.SetOffset(offset); err != nil {
		return apperrors.ErrConsumer.WithCause(fmt.Errorf("failed to seek %s to %d: %w", tp, offset, err))
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeGroup()
}

func (c *KafkaConsumer) closeGroup() error {
	c.closeReaders()
	c.gen = nil
	if c.group == nil {
		return nil
	}
	err := c.group.Close()
	c.group = nil
	return err
}

func (c *KafkaConsumer) closeReaders() {
	for tp, r := range c.readers {
		if err := r.Close(); err != nil {
			c.logger.Warnw("Failed to close partition reader", "partition", tp.String(), "error", err)
		}
		delete(c.readers, tp)
	}
}

// fetchRecords drains every reader concurrently. A reader waits up to
// timeout for its first record and then keeps reading for at most
// constants.KafkaFetchLinger. The result is ordered by partition then
// offset.
func fetchRecords(ctx context.Context, readers map[models.TopicPartition]partitionReader, timeout time.Duration, maxRecords int) ([]*models.SourceRecord, error) {
	if len(readers) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(timeout):
		}
		return nil, nil
	}

	limit := maxRecords
	if limit > 0 {
		limit = (maxRecords + len(readers) - 1) / len(readers)
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tps := make([]models.TopicPartition, 0, len(readers))
	for tp := range readers {
		tps = append(tps, tp)
	}
	sort.Slice(tps, func(i, j int) bool {
		if tps[i].Topic != tps[j].Topic {
			return tps[i].Topic < tps[j].Topic
		}
		return tps[i].Partition < tps[j].Partition
	})

	batches := make([][]*models.SourceRecord, len(tps))
	g, gctx := errgroup.WithContext(pollCtx)
	for i, tp := range tps {
		reader := readers[tp]
		g.Go(func() error {
			batch, err := drain(gctx, reader, limit)
			batches[i] = batch
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []*models.SourceRecord
	for _, b := range batches {
		records = append(records, b...)
	}
	return records, nil
}

func drain(ctx context.Context, reader partitionReader, limit int) ([]*models.SourceRecord, error) {
	var out []*models.SourceRecord

	fetchCtx := ctx
	var cancel context.CancelFunc = func() {}
	defer func() { cancel() }()

	for limit <= 0 || len(out) < limit {
		msg, err := reader.FetchMessage(fetchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return out, nil
			}
			return out, err
		}
		out = append(out, toSourceRecord(msg))

		if len(out) == 1 {
			fetchCtx, cancel = context.WithTimeout(ctx, constants.KafkaFetchLinger)
		}
	}
	return out, nil
}

func toSourceRecord(msg kafka.Message) *models.SourceRecord {
	var headers map[string][]byte
	if len(msg.Headers) > 0 {
		headers = make(map[string][]byte, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = h.Value
		}
	}
	return &models.SourceRecord{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Time,
		Headers:   headers,
	}
}
