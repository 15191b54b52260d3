package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// PostgresStore persists audit entries in PostgreSQL. The audit schema is
// created idempotently on first use so compliance logging works against a
// fresh database without a migration step.
type PostgresStore struct {
	db *sql.DB

	mu     sync.Mutex
	schema bool
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const createAuditSchema = `
	CREATE TABLE IF NOT EXISTS consent_audit_log (
		id            BIGSERIAL PRIMARY KEY,
		user_id       TEXT,
		ip_address    TEXT NOT NULL,
		user_agent    TEXT,
		operation     TEXT NOT NULL,
		consent_types JSONB NOT NULL DEFAULT '[]',
		result        TEXT NOT NULL,
		reason        TEXT NOT NULL,
		source        TEXT,
		metadata      JSONB,
		created_at    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consent_audit_operation
		ON consent_audit_log (operation, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_consent_audit_subject
		ON consent_audit_log (user_id, created_at DESC);
`

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, createAuditSchema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	s.schema = true
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	types, err := json.Marshal(entry.ConsentTypes)
	if err != nil {
		return fmt.Errorf("marshal consent types: %w", err)
	}
	var metadata []byte
	if entry.Metadata != nil {
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO consent_audit_log
			(user_id, ip_address, user_agent, operation, consent_types, result, reason, source, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		nullable(entry.UserID),
		entry.IPAddress,
		nullable(entry.UserAgent),
		entry.Operation,
		types,
		entry.Result,
		entry.Reason,
		nullable(entry.Source),
		metadata,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectKey string) ([]Entry, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query := `
		SELECT user_id, ip_address, user_agent, operation, consent_types, result, reason, source, metadata, created_at
		FROM consent_audit_log
		WHERE user_id = $1 OR (user_id IS NULL AND ip_address = $1)
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, subjectKey)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var entry Entry
	var userID, userAgent, source sql.NullString
	var types, metadata []byte
	if err := rows.Scan(&userID, &entry.IPAddress, &userAgent, &entry.Operation,
		&types, &entry.Result, &entry.Reason, &source, &metadata, &entry.Timestamp); err != nil {
		return Entry{}, err
	}
	entry.UserID = userID.String
	entry.UserAgent = userAgent.String
	entry.Source = source.String
	if len(types) > 0 {
		if err := json.Unmarshal(types, &entry.ConsentTypes); err != nil {
			return Entry{}, fmt.Errorf("unmarshal consent types: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return Entry{}, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
	}
	return entry, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
