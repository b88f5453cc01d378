package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimant-consumer/internal/logger"
	"claimant-consumer/internal/processor"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
)

type fakeConsumer struct {
	mu             sync.Mutex
	subscribeUntil int
	subscribeCalls int
	polls          [][]*models.SourceRecord
	drained        func()
	committed      map[models.TopicPartition]int64
	commits        map[models.TopicPartition][]int64
	seeks          map[models.TopicPartition][]int64
	closed         bool
}

func newFakeConsumer(polls ...[]*models.SourceRecord) *fakeConsumer {
	return &fakeConsumer{
		polls:     polls,
		committed: map[models.TopicPartition]int64{},
		commits:   map[models.TopicPartition][]int64{},
		seeks:     map[models.TopicPartition][]int64{},
	}
}

func (f *fakeConsumer) Subscribe(context.Context, *regexp.Regexp) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	return f.subscribeCalls > f.subscribeUntil, nil
}

func (f *fakeConsumer) Poll(context.Context, time.Duration) ([]*models.SourceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.polls) == 0 {
		if f.drained != nil {
			f.drained()
		}
		return nil, nil
	}
	batch := f.polls[0]
	f.polls = f.polls[1:]
	return batch, nil
}

func (f *fakeConsumer) Commit(_ context.Context, tp models.TopicPartition, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[tp] = append(f.commits[tp], offset)
	f.committed[tp] = offset
	return nil
}

func (f *fakeConsumer) Committed(_ context.Context, tp models.TopicPartition) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	offset, ok := f.committed[tp]
	return offset, ok, nil
}

func (f *fakeConsumer) Seek(_ context.Context, tp models.TopicPartition, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks[tp] = append(f.seeks[tp], offset)
	return nil
}

func (f *fakeConsumer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// scriptedProcessor decides outcomes from the record value.
type scriptedProcessor struct{}

func (scriptedProcessor) Process(_ context.Context, r *models.SourceRecord) (processor.Outcome, error) {
	id := fmt.Sprintf("%s-%d", r.Topic, r.Offset)
	switch string(r.Value) {
	case "upsert":
		return processor.Outcome{Kind: processor.OutcomeUpsert, Record: r, Upsert: models.TransformationResult{NaturalID: id}}, nil
	case "delete":
		return processor.Outcome{Kind: processor.OutcomeDelete, Record: r, Delete: models.DeleteResult{NaturalID: id}}, nil
	case "filter":
		return processor.Outcome{Kind: processor.OutcomeFiltered, Record: r}, nil
	case "fatal":
		return processor.Outcome{Kind: processor.OutcomeFailed, Record: r}, apperrors.ErrServiceUnavailable
	case "panic":
		panic("processor blew up")
	default:
		return processor.Outcome{Kind: processor.OutcomeFailed, Record: r}, nil
	}
}

type fakeSuccess struct {
	mu      sync.Mutex
	upserts map[string][]models.TransformationResult
	deletes map[string][]models.DeleteResult
	calls   map[string]int
	// failWith is returned by call number failOnCall for topic failOn.
	failWith   error
	failOn     string
	failOnCall int
}

func newFakeSuccess() *fakeSuccess {
	return &fakeSuccess{
		upserts: map[string][]models.TransformationResult{},
		deletes: map[string][]models.DeleteResult{},
		calls:   map[string]int{},
	}
}

func (f *fakeSuccess) fail(topic string) error {
	f.calls[topic]++
	if f.failWith != nil && topic == f.failOn && f.calls[topic] == f.failOnCall {
		return f.failWith
	}
	return nil
}

func (f *fakeSuccess) Upsert(_ context.Context, topic string, records []models.TransformationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(topic); err != nil {
		return err
	}
	f.upserts[topic] = append(f.upserts[topic], records...)
	return nil
}

func (f *fakeSuccess) Delete(_ context.Context, topic string, records []models.DeleteResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(topic); err != nil {
		return err
	}
	f.deletes[topic] = append(f.deletes[topic], records...)
	return nil
}

type fakeFailure struct {
	mu      sync.Mutex
	records []*models.SourceRecord
}

func (f *fakeFailure) Send(_ context.Context, records []*models.SourceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func record(topic string, partition int, offset int64, value string) *models.SourceRecord {
	return &models.SourceRecord{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Key:       []byte(fmt.Sprintf("key-%d", offset)),
		Value:     []byte(value),
	}
}

type harness struct {
	consumer *fakeConsumer
	success  *fakeSuccess
	failure  *fakeFailure
	orch     *Orchestrator
}

func newHarness(t *testing.T, polls ...[]*models.SourceRecord) (*harness, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	consumer := newFakeConsumer(polls...)
	consumer.drained = cancel
	h := &harness{
		consumer: consumer,
		success:  newFakeSuccess(),
		failure:  &fakeFailure{},
	}
	h.orch = New(Config{
		TopicPattern:        regexp.MustCompile(`db\..*`),
		PollDuration:        time.Millisecond,
		SubscribeRetryDelay: time.Millisecond,
	}, consumer, scriptedProcessor{}, h.success, h.failure, logger.NopLogger())
	return h, ctx
}

const (
	claimant = "db.core.claimant"
	contract = "db.core.contract"
)

func TestRun_RoutesAndCommitsPerPartition(t *testing.T) {
	batch := []*models.SourceRecord{
		record(claimant, 0, 10, "upsert"),
		record(claimant, 0, 11, "bad"),
		record(contract, 1, 3, "delete"),
		record(claimant, 0, 12, "filter"),
		record(contract, 1, 4, "upsert"),
	}
	h, ctx := newHarness(t, batch)

	require.NoError(t, h.orch.Run(ctx))

	assert.Equal(t, []int64{13}, h.consumer.commits[models.TopicPartition{Topic: claimant, Partition: 0}])
	assert.Equal(t, []int64{5}, h.consumer.commits[models.TopicPartition{Topic: contract, Partition: 1}])

	require.Len(t, h.failure.records, 1)
	assert.Same(t, batch[1], h.failure.records[0])

	require.Len(t, h.success.upserts[claimant], 1)
	assert.Equal(t, "db.core.claimant-10", h.success.upserts[claimant][0].NaturalID)
	require.Len(t, h.success.upserts[contract], 1)
	require.Len(t, h.success.deletes[contract], 1)
	assert.Equal(t, "db.core.contract-3", h.success.deletes[contract][0].NaturalID)
	assert.Empty(t, h.success.deletes[claimant])

	assert.True(t, h.consumer.closed)
}

func TestRun_FilteredRecordsAreCommittedButNotSunk(t *testing.T) {
	topic := "db.core.filter-test"
	var batch []*models.SourceRecord
	for i := int64(0); i < 100; i++ {
		value := "upsert"
		if i%2 == 1 {
			value = "filter"
		}
		batch = append(batch, record(topic, 0, i, value))
	}
	h, ctx := newHarness(t, batch)

	before := testutil.ToFloat64(metrics.RecordsProcessedTotal.WithLabelValues(topic, metrics.OutcomeFiltered))
	require.NoError(t, h.orch.Run(ctx))

	assert.Len(t, h.success.upserts[topic], 50)
	assert.Empty(t, h.failure.records)
	assert.Equal(t, []int64{100}, h.consumer.commits[models.TopicPartition{Topic: topic}])
	assert.Equal(t, before+50, testutil.ToFloat64(metrics.RecordsProcessedTotal.WithLabelValues(topic, metrics.OutcomeFiltered)))
}

func TestRun_SinkFailureRollsBackOnlyThatPartition(t *testing.T) {
	claimantTP := models.TopicPartition{Topic: claimant, Partition: 0}
	contractTP := models.TopicPartition{Topic: contract, Partition: 0}

	h, ctx := newHarness(t,
		[]*models.SourceRecord{record(claimant, 0, 0, "upsert"), record(contract, 0, 0, "upsert")},
		[]*models.SourceRecord{record(claimant, 0, 1, "upsert"), record(contract, 0, 1, "upsert")},
	)
	h.success.failWith = apperrors.ErrSink.WithCause(errors.New("db down"))
	h.success.failOn = claimant
	h.success.failOnCall = 2

	err := h.orch.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrSink))

	assert.Equal(t, []int64{1}, h.consumer.commits[claimantTP])
	assert.Equal(t, []int64{1}, h.consumer.seeks[claimantTP])
	assert.Equal(t, []int64{1, 2}, h.consumer.commits[contractTP])
	assert.Empty(t, h.consumer.seeks[contractTP])
	assert.True(t, h.consumer.closed)
}

func TestRun_FatalProcessingErrorWithoutCommitDoesNotSeek(t *testing.T) {
	tp := models.TopicPartition{Topic: claimant, Partition: 2}
	h, ctx := newHarness(t, []*models.SourceRecord{
		record(claimant, 2, 0, "upsert"),
		record(claimant, 2, 1, "fatal"),
	})

	err := h.orch.Run(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsServiceUnavailable(err))

	assert.Empty(t, h.consumer.commits[tp])
	assert.Empty(t, h.consumer.seeks[tp])
	assert.Empty(t, h.success.upserts[claimant])
	assert.Empty(t, h.failure.records)
}

func TestRun_PanicBecomesFatalRollback(t *testing.T) {
	tp := models.TopicPartition{Topic: claimant, Partition: 0}
	h, ctx := newHarness(t, []*models.SourceRecord{record(claimant, 0, 7, "panic")})
	h.consumer.committed[tp] = 5

	err := h.orch.Run(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, []int64{5}, h.consumer.seeks[tp])
	assert.Empty(t, h.consumer.commits[tp])
}

func TestRun_RetriesSubscribeUntilTopicsExist(t *testing.T) {
	h, ctx := newHarness(t, []*models.SourceRecord{record(claimant, 0, 0, "upsert")})
	h.consumer.subscribeUntil = 3

	require.NoError(t, h.orch.Run(ctx))
	assert.GreaterOrEqual(t, h.consumer.subscribeCalls, 4)
	assert.Len(t, h.success.upserts[claimant], 1)
}

func TestRun_StopsWhenCancelledWhileSubscribing(t *testing.T) {
	h, _ := newHarness(t)
	h.consumer.subscribeUntil = 1 << 30

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, h.orch.Run(ctx))
	assert.True(t, h.consumer.closed)
}

func TestGroupByPartition(t *testing.T) {
	records := []*models.SourceRecord{
		record("b", 1, 0, ""),
		record("a", 0, 0, ""),
		record("b", 1, 1, ""),
	}

	order, byPartition := groupByPartition(records)
	assert.Equal(t, []models.TopicPartition{{Topic: "b", Partition: 1}, {Topic: "a", Partition: 0}}, order)
	assert.Len(t, byPartition[models.TopicPartition{Topic: "b", Partition: 1}], 2)
}
