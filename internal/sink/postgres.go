package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"claimant-consumer/internal/extraction"
	"claimant-consumer/internal/logger"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/models"
)

const (
	operationUpsert = "upsert"
	operationInsert = "insert"
	operationUpdate = "update"
	operationDelete = "delete"
)

// Table names the target table of a source topic and the generated column
// holding the record's natural id.
type Table struct {
	Name      string
	NaturalID string
}

// PostgresSink writes a topic's records to its table. The table stores the
// transformed document in a jsonb data column; the natural id column is
// generated from it and unique.
type PostgresSink struct {
	db     *sql.DB
	tables map[string]Table
	logger logger.Logger
}

func NewPostgresSink(db *sql.DB, tables map[string]Table, log logger.Logger) *PostgresSink {
	return &PostgresSink{db: db, tables: tables, logger: log}
}

func upsertSQL(t Table) string {
	return fmt.Sprintf(
		`INSERT INTO %s (data) VALUES ($1::jsonb) ON CONFLICT (%s) DO UPDATE SET data = EXCLUDED.data RETURNING (xmax = 0) AS inserted`,
		pq.QuoteIdentifier(t.Name), pq.QuoteIdentifier(t.NaturalID))
}

func deleteSQL(t Table) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
		pq.QuoteIdentifier(t.Name), pq.QuoteIdentifier(t.NaturalID))
}

func (s *PostgresSink) table(topic string) (Table, error) {
	t, ok := s.tables[topic]
	if !ok {
		return Table{}, apperrors.ErrSink.WithCause(fmt.Errorf("no target table for topic %s", topic))
	}
	return t, nil
}

func (s *PostgresSink) Upsert(ctx context.Context, topic string, records []models.TransformationResult) error {
	if len(records) == 0 {
		return nil
	}
	t, err := s.table(topic)
	if err != nil {
		return err
	}

	start := time.Now()
	inserted := make([]bool, len(records))
	err = s.inTx(ctx, upsertSQL(t), func(stmt *sql.Stmt) error {
		for i, r := range records {
			if err := stmt.QueryRowContext(ctx, r.TransformedDBObject).Scan(&inserted[i]); err != nil {
				return fmt.Errorf("failed to upsert %s into %s: %w", r.NaturalID, t.Name, err)
			}
		}
		return nil
	})
	metrics.ObserveDatabaseQueryDuration(topic, operationUpsert, time.Since(start))
	if err != nil {
		return apperrors.ErrSink.WithDetail("table", t.Name).WithCause(err)
	}

	inserts := 0
	for i, r := range records {
		msg := "Updated record"
		if inserted[i] {
			msg = "Inserted record"
			inserts++
		}
		fields := []interface{}{
			"topic", topic,
			"table", t.Name,
			"id", r.NaturalID,
			"action", string(r.Extract.Action),
			"timestamp", r.Extract.Timestamp.Timestamp,
			"timestamp_source", r.Extract.Timestamp.Source,
		}
		s.logger.InfowCtx(ctx, msg, append(fields, summaryFields(r.TransformedDBObject)...)...)
	}
	metrics.AddDatabaseRows(topic, operationInsert, inserts)
	metrics.AddDatabaseRows(topic, operationUpdate, len(records)-inserts)
	return nil
}

func (s *PostgresSink) Delete(ctx context.Context, topic string, records []models.DeleteResult) error {
	if len(records) == 0 {
		return nil
	}
	t, err := s.table(topic)
	if err != nil {
		return err
	}

	start := time.Now()
	affected := make([]int64, len(records))
	err = s.inTx(ctx, deleteSQL(t), func(stmt *sql.Stmt) error {
		for i, r := range records {
			res, err := stmt.ExecContext(ctx, r.NaturalID)
			if err != nil {
				return fmt.Errorf("failed to delete %s from %s: %w", r.NaturalID, t.Name, err)
			}
			if affected[i], err = res.RowsAffected(); err != nil {
				return err
			}
		}
		return nil
	})
	metrics.ObserveDatabaseQueryDuration(topic, operationDelete, time.Since(start))
	if err != nil {
		return apperrors.ErrSink.WithDetail("table", t.Name).WithCause(err)
	}

	deleted := 0
	for i, r := range records {
		fields := []interface{}{
			"topic", topic,
			"table", t.Name,
			"id", r.NaturalID,
			"timestamp", r.Extract.Timestamp.Timestamp,
			"timestamp_source", r.Extract.Timestamp.Source,
			"rows_updated", affected[i],
		}
		if affected[i] == 0 {
			s.logger.WarnwCtx(ctx, "Failed to delete record, no rows updated", fields...)
			continue
		}
		deleted++
		s.logger.InfowCtx(ctx, "Deleted record", fields...)
	}
	metrics.AddDatabaseRows(topic, operationDelete, deleted)
	return nil
}

func (s *PostgresSink) inTx(ctx context.Context, query string, fn func(stmt *sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		return err
	}
	return tx.Commit()
}

// summaryFields picks a few non-sensitive fields of a transformed document
// for the audit log line.
func summaryFields(transformed string) []interface{} {
	doc, err := extraction.Decode([]byte(transformed))
	if err != nil {
		return nil
	}

	var fields []interface{}
	add := func(name string, path ...string) {
		if v, ok := extraction.Value(doc, path...); ok && v != nil {
			fields = append(fields, name, v)
		}
	}

	add("nino", "nino")
	add("start_date", "startDate")
	add("closed_date", "closedDate")
	add("assessment_start_date", "assessmentPeriod", "startDate")
	add("assessment_end_date", "assessmentPeriod", "endDate")

	if people, err := extraction.List(doc, "people"); err == nil {
		fields = append(fields, "people", len(people))
	}
	return fields
}
