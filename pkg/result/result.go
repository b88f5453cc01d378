// Package result carries per-record stage outcomes. A success holds the
// record and the stage output; a failure holds only the original record.
//
// A failed Result is an expected, per-record outcome that is routed to the
// dead letter sink. A non-nil error returned next to a Result is fatal for
// the whole batch.
package result

import (
	"context"

	"claimant-consumer/pkg/models"
)

type Result[T any] struct {
	Record *models.SourceRecord
	Value  T
	ok     bool
}

func Ok[T any](record *models.SourceRecord, value T) Result[T] {
	return Result[T]{Record: record, Value: value, ok: true}
}

func Fail[T any](record *models.SourceRecord) Result[T] {
	return Result[T]{Record: record}
}

func (r Result[T]) IsOk() bool {
	return r.ok
}

// Stage is a single step of the pipeline.
type Stage[In, Out any] func(ctx context.Context, record *models.SourceRecord, in In) (Result[Out], error)

// AndThen runs next on a success and propagates a failure unchanged.
func AndThen[In, Out any](ctx context.Context, r Result[In], next Stage[In, Out]) (Result[Out], error) {
	if !r.ok {
		return Fail[Out](r.Record), nil
	}
	return next(ctx, r.Record, r.Value)
}

// Compose chains two stages into one. An error from first stops the chain.
func Compose[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, record *models.SourceRecord, in A) (Result[C], error) {
		mid, err := first(ctx, record, in)
		if err != nil {
			return Fail[C](record), err
		}
		return AndThen(ctx, mid, second)
	}
}

// Partition splits results into successes and the records that failed,
// preserving order within each.
func Partition[T any](results []Result[T]) ([]Result[T], []*models.SourceRecord) {
	var ok []Result[T]
	var failed []*models.SourceRecord
	for _, r := range results {
		if r.ok {
			ok = append(ok, r)
		} else {
			failed = append(failed, r.Record)
		}
	}
	return ok, failed
}
