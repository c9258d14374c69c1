package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/blankon/submission-relay/internal/submission/model"
)

// ErrRecordNotFound is returned by Get for an unknown id
var ErrRecordNotFound = errors.New("audit record not found")

// AuditStore handles audit record persistence in SQLite
type AuditStore struct {
	db         *DB
	table      string
	maxRecords int
}

// NewAuditStore creates the audit table if needed and returns a store keeping
// at most maxRecords rows. An empty table falls back to DefaultAuditTable.
func NewAuditStore(ctx context.Context, db *DB, table string, maxRecords int) (*AuditStore, error) {
	if table == "" {
		table = DefaultAuditTable
	}
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	if maxRecords <= 0 {
		maxRecords = 10000
	}

	if _, err := db.ExecContext(ctx, auditSchema(table)); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &AuditStore{
		db:         db,
		table:      table,
		maxRecords: maxRecords,
	}, nil
}

// Append stores one record. Records are never updated, a duplicate id is an error.
func (s *AuditStore) Append(ctx context.Context, record model.AuditRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s" (record_id, email, status, recorded_at)
		VALUES (?, ?, ?, ?)
	`, s.table)

	_, err := s.db.ExecContext(ctx, query, record.ID, record.Email, record.Status, record.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	if err := s.cleanupOldRecords(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to cleanup old audit records")
	}

	return nil
}

// Get retrieves a record by id
func (s *AuditStore) Get(ctx context.Context, id string) (*model.AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT record_id, email, status, recorded_at
		FROM "%s"
		WHERE record_id = ?
	`, s.table)

	var record model.AuditRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(&record.ID, &record.Email, &record.Status, &record.Timestamp)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}

	return &record, nil
}

// Recent retrieves the N most recent records, optionally for one email only
func (s *AuditStore) Recent(ctx context.Context, limit int, email string) ([]*model.AuditRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT record_id, email, status, recorded_at
		FROM "%s"
	`, s.table)
	args := []interface{}{}
	if email != "" {
		query += " WHERE email = ?"
		args = append(args, email)
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		var record model.AuditRecord
		if err := rows.Scan(&record.ID, &record.Email, &record.Status, &record.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return records, nil
}

// cleanupOldRecords removes the oldest rows beyond maxRecords
func (s *AuditStore) cleanupOldRecords(ctx context.Context) error {
	query := fmt.Sprintf(`
		DELETE FROM "%[1]s"
		WHERE id NOT IN (
			SELECT id FROM "%[1]s"
			ORDER BY recorded_at DESC, id DESC
			LIMIT ?
		)
	`, s.table)

	_, err := s.db.ExecContext(ctx, query, s.maxRecords)
	return err
}
