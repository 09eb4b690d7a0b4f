package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/validation"
)

// DatabaseQuerier is the subset of *pgxpool.Pool used here, satisfied by
// pgxmock in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresSource stores raw records as JSONB payloads, one row per record,
// ordered by the position the fetcher received them in.
//
//	CREATE TABLE anime (position integer PRIMARY KEY, id integer NOT NULL, payload jsonb NOT NULL);
type PostgresSource struct {
	db        DatabaseQuerier
	table     string
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewPostgresSource(db DatabaseQuerier, table string, validator *validation.SchemaValidator, logger *logrus.Logger) *PostgresSource {
	if table == "" {
		table = "anime"
	}
	return &PostgresSource{
		db:        db,
		table:     table,
		validator: validator,
		logger:    logger,
	}
}

func (s *PostgresSource) Records(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf("SELECT payload FROM %s ORDER BY position", pgx.Identifier{s.table}.Sanitize())

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row %d: %w", len(records), err)
		}

		var rec Record
		if err := decodeRecord(payload, s.validator, &rec); err != nil {
			return nil, fmt.Errorf("catalog row %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog rows: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"table":   s.table,
		"records": len(records),
	}).Info("Catalog rows read")

	return records, nil
}

// Replace swaps the stored catalog for records in a single transaction.
func (s *PostgresSource) Replace(ctx context.Context, records []Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	table := pgx.Identifier{s.table}
	if _, err := tx.Exec(ctx, "TRUNCATE "+table.Sanitize()); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", s.table, err)
	}

	rows := make([][]interface{}, 0, len(records))
	for i, rec := range records {
		if rec.ID == nil {
			return fmt.Errorf("record %d: missing id: %w", i, ErrMalformedRecord)
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %d: %w", i, err)
		}
		rows = append(rows, []interface{}{i, *rec.ID, payload})
	}

	copied, err := tx.CopyFrom(ctx, table, []string{"position", "id", "payload"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"table":   s.table,
		"records": copied,
	}).Info("Catalog stored")

	return nil
}
