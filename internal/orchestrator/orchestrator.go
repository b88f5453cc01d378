// Package orchestrator drives the poll, process, sink and commit loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"claimant-consumer/internal/broker"
	"claimant-consumer/internal/logger"
	"claimant-consumer/internal/processor"
	"claimant-consumer/internal/sink"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/logging"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
	"claimant-consumer/pkg/tracing"
)

const (
	batchStatusCommitted  = "committed"
	batchStatusRolledBack = "rolled_back"
)

// RecordProcessor decides the outcome of a single record.
type RecordProcessor interface {
	Process(ctx context.Context, record *models.SourceRecord) (processor.Outcome, error)
}

type Config struct {
	TopicPattern        *regexp.Regexp
	PollDuration        time.Duration
	SubscribeRetryDelay time.Duration
}

type Orchestrator struct {
	cfg       Config
	consumer  broker.LogConsumer
	processor RecordProcessor
	success   sink.SuccessSink
	failure   sink.FailureSink
	logger    logger.Logger
}

func New(cfg Config, consumer broker.LogConsumer, p RecordProcessor, success sink.SuccessSink, failure sink.FailureSink, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		consumer:  consumer,
		processor: p,
		success:   success,
		failure:   failure,
		logger:    log,
	}
}

// Run consumes until ctx is cancelled, which returns nil, or until a
// partition batch fails, which returns that failure after the partition has
// been rewound. The consumer is closed either way.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer func() {
		if cerr := o.consumer.Close(); cerr != nil {
			o.logger.Warnw("Failed to close consumer", "error", cerr)
		}
	}()

	for {
		if ctx.Err() != nil {
			o.logger.Info("Consumer stopping")
			return nil
		}

		if err := o.subscribe(ctx); err != nil {
			return nil
		}

		records, err := o.consumer.Poll(ctx, o.cfg.PollDuration)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("poll failed: %w", err)
		}

		if len(records) == 0 {
			continue
		}
		o.logger.Infow("Fetched records", "size", len(records))

		if err := o.processBatch(ctx, records); err != nil {
			return err
		}
	}
}

// subscribe returns once the consumer follows at least one topic. It only
// returns an error when ctx ends first.
func (o *Orchestrator) subscribe(ctx context.Context) error {
	for {
		ok, err := o.consumer.Subscribe(ctx, o.cfg.TopicPattern)
		if ok {
			if err != nil {
				o.logger.Warnw("Failed to refresh subscription", "error", err)
			}
			return nil
		}
		if err != nil {
			o.logger.Warnw("Failed to subscribe", "pattern", o.cfg.TopicPattern.String(), "error", err)
		} else {
			o.logger.Info("No topics and no current subscription, trying again")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.SubscribeRetryDelay):
		}
	}
}

// processBatch runs one task per partition and waits for all of them. A
// partition task is not cancelled by shutdown or by another partition
// failing; it always finishes by committing or rewinding.
func (o *Orchestrator) processBatch(ctx context.Context, records []*models.SourceRecord) error {
	order, byPartition := groupByPartition(records)
	taskCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for _, tp := range order {
		batch := byPartition[tp]
		g.Go(func() error {
			return o.processPartition(taskCtx, tp, batch)
		})
	}
	return g.Wait()
}

func groupByPartition(records []*models.SourceRecord) ([]models.TopicPartition, map[models.TopicPartition][]*models.SourceRecord) {
	var order []models.TopicPartition
	byPartition := make(map[models.TopicPartition][]*models.SourceRecord)
	for _, r := range records {
		tp := r.TopicPartition()
		if _, ok := byPartition[tp]; !ok {
			order = append(order, tp)
		}
		byPartition[tp] = append(byPartition[tp], r)
	}
	return order, byPartition
}

func (o *Orchestrator) processPartition(ctx context.Context, tp models.TopicPartition, records []*models.SourceRecord) (err error) {
	start := time.Now()
	ctx, span := tracing.StartBatchSpan(ctx, tp, len(records))
	defer span.End()

	ctx = logging.WithPartition(ctx, tp.Topic, tp.Partition)

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
			o.logger.ErrorwCtx(ctx, "Partition task panicked", "stack_trace", apperrors.StackTrace(err))
		}
		if err == nil {
			metrics.ObserveBatch(tp.Topic, batchStatusCommitted, time.Since(start))
			return
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.ErrorwCtx(ctx, "Batch failed, not committing offset, resetting position to last commit", "error", err)
		if rerr := o.rollback(ctx, tp); rerr != nil {
			err = errors.Join(err, rerr)
		}
		metrics.ObserveBatch(tp.Topic, batchStatusRolledBack, time.Since(start))
	}()

	if err := o.sendToSinks(ctx, tp, records); err != nil {
		return err
	}

	next := records[len(records)-1].Offset + 1
	for _, r := range records {
		if r.Offset+1 > next {
			next = r.Offset + 1
		}
	}

	o.logger.InfowCtx(ctx, "Processed batch, committing offset", "offset", next)
	if err := o.consumer.Commit(ctx, tp, next); err != nil {
		return fmt.Errorf("commit of %s failed: %w", tp, err)
	}
	metrics.SetCommittedOffset(tp.Topic, tp.Partition, next)
	return nil
}

func (o *Orchestrator) sendToSinks(ctx context.Context, tp models.TopicPartition, records []*models.SourceRecord) error {
	var (
		failed   []*models.SourceRecord
		upserts  []models.TransformationResult
		deletes  []models.DeleteResult
		filtered int
	)

	for _, record := range records {
		outcome, err := o.processor.Process(ctx, record)
		if err != nil {
			return fmt.Errorf("processing %s at offset %d failed: %w", tp, record.Offset, err)
		}
		switch outcome.Kind {
		case processor.OutcomeUpsert:
			upserts = append(upserts, outcome.Upsert)
		case processor.OutcomeDelete:
			deletes = append(deletes, outcome.Delete)
		case processor.OutcomeFiltered:
			filtered++
		default:
			failed = append(failed, record)
		}
	}

	if err := o.failure.Send(ctx, failed); err != nil {
		return fmt.Errorf("failure sink rejected %d records of %s: %w", len(failed), tp, err)
	}
	if len(upserts) > 0 {
		if err := o.success.Upsert(ctx, tp.Topic, upserts); err != nil {
			return fmt.Errorf("success sink rejected %d upserts of %s: %w", len(upserts), tp, err)
		}
	}
	if len(deletes) > 0 {
		if err := o.success.Delete(ctx, tp.Topic, deletes); err != nil {
			return fmt.Errorf("success sink rejected %d deletes of %s: %w", len(deletes), tp, err)
		}
	}

	metrics.IncRecordsProcessed(tp.Topic, metrics.OutcomeUpserted, len(upserts))
	metrics.IncRecordsProcessed(tp.Topic, metrics.OutcomeDeleted, len(deletes))
	metrics.IncRecordsProcessed(tp.Topic, metrics.OutcomeFiltered, filtered)
	metrics.IncRecordsProcessed(tp.Topic, metrics.OutcomeFailed, len(failed))
	return nil
}

// rollback moves tp back to its committed offset. When nothing has been
// committed yet the position is left alone.
func (o *Orchestrator) rollback(ctx context.Context, tp models.TopicPartition) error {
	offset, ok, err := o.consumer.Committed(ctx, tp)
	if err != nil {
		return fmt.Errorf("failed to read committed offset of %s: %w", tp, err)
	}
	if !ok {
		o.logger.WarnwCtx(ctx, "No committed offset to roll back to")
		return nil
	}
	if err := o.consumer.Seek(ctx, tp, offset); err != nil {
		return fmt.Errorf("failed to seek %s to %d: %w", tp, offset, err)
	}
	o.logger.InfowCtx(ctx, "Rolled back partition", "offset", offset)
	return nil
}
