package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"platewatch/internal/consent/models"
	dErrors "platewatch/pkg/domain-errors"
)

// PostgresStore persists consent rows in PostgreSQL. Rows are append-only:
// the only UPDATE touches version/metadata, never the given state.
type PostgresStore struct {
	db *sql.DB

	mu     sync.Mutex
	schema bool
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const createConsentSchema = `
	CREATE TABLE IF NOT EXISTS consent_records (
		id            UUID PRIMARY KEY,
		seq           BIGSERIAL,
		user_id       TEXT,
		ip_address    TEXT NOT NULL,
		user_agent    TEXT,
		consent_type  TEXT NOT NULL,
		consent_given BOOLEAN NOT NULL,
		version       TEXT NOT NULL,
		expires_at    TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		metadata      JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_consent_records_user
		ON consent_records (user_id, created_at DESC, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_consent_records_ip
		ON consent_records (ip_address, created_at DESC, seq DESC);
`

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, createConsentSchema); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "create consent schema")
	}
	s.schema = true
	return nil
}

func (s *PostgresStore) StoreConsent(ctx context.Context, record *models.Record) (string, error) {
	if record == nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "consent record is required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return "", err
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	var metadata []byte
	if record.Metadata != nil {
		var err error
		metadata, err = json.Marshal(record.Metadata)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "marshal consent metadata")
		}
	}

	query := `
		INSERT INTO consent_records
			(id, user_id, ip_address, user_agent, consent_type, consent_given, version, expires_at, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq
	`
	err := s.db.QueryRowContext(ctx, query,
		record.ID,
		nullString(record.UserID),
		record.IPAddress,
		nullString(record.UserAgent),
		string(record.Type),
		record.Given,
		record.Version,
		record.ExpiresAt,
		record.CreatedAt,
		record.UpdatedAt,
		metadata,
	).Scan(&record.Seq)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "store consent")
	}
	return record.ID, nil
}

func (s *PostgresStore) GetConsentRecords(ctx context.Context, subject models.Subject, types []models.ConsentType) ([]*models.Record, error) {
	if len(types) == 0 {
		return nil, nil
	}
	rows, err := s.querySubject(ctx, subject, types)
	if err != nil {
		return nil, err
	}

	current := currentPerType(rows)
	var out []*models.Record
	for _, t := range types {
		if record, ok := current[t]; ok {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *PostgresStore) ListCurrent(ctx context.Context, subject models.Subject) ([]*models.Record, error) {
	rows, err := s.querySubject(ctx, subject, nil)
	if err != nil {
		return nil, err
	}

	current := currentPerType(rows)
	var out []*models.Record
	for _, record := range current {
		out = append(out, record)
	}
	return out, nil
}

func (s *PostgresStore) UpdateConsent(ctx context.Context, id string, version string, metadata models.Metadata) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	var encoded []byte
	if metadata != nil {
		var err error
		encoded, err = json.Marshal(metadata)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "marshal consent metadata")
		}
	}

	query := `
		UPDATE consent_records
		SET version = COALESCE(NULLIF($2, ''), version),
		    metadata = COALESCE($3, metadata),
		    updated_at = $4
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id, version, encoded, time.Now())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "update consent")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "update consent rows")
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// querySubject fetches rows newest-first for one identity. A nil types
// slice fetches every type.
func (s *PostgresStore) querySubject(ctx context.Context, subject models.Subject, types []models.ConsentType) ([]*models.Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, seq, user_id, ip_address, user_agent, consent_type, consent_given, version, expires_at, created_at, updated_at, metadata
		FROM consent_records
	`)
	var args []any
	if subject.UserID != "" {
		sb.WriteString("WHERE user_id = $1")
		args = append(args, subject.UserID)
	} else {
		sb.WriteString("WHERE user_id IS NULL AND ip_address = $1")
		args = append(args, subject.IPAddress)
	}
	if len(types) > 0 {
		placeholders := make([]string, 0, len(types))
		for _, t := range types {
			args = append(args, string(t))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		sb.WriteString(" AND consent_type IN (" + strings.Join(placeholders, ", ") + ")")
	}
	sb.WriteString(" ORDER BY created_at DESC, seq DESC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "query consent records")
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "scan consent record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "iterate consent records")
	}
	return records, nil
}

func scanConsent(rows *sql.Rows) (*models.Record, error) {
	var record models.Record
	var userID, userAgent sql.NullString
	var expiresAt sql.NullTime
	var consentType string
	var metadata []byte
	if err := rows.Scan(&record.ID, &record.Seq, &userID, &record.IPAddress, &userAgent,
		&consentType, &record.Given, &record.Version, &expiresAt,
		&record.CreatedAt, &record.UpdatedAt, &metadata); err != nil {
		return nil, err
	}
	record.UserID = userID.String
	record.UserAgent = userAgent.String
	record.Type = models.ConsentType(consentType)
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal consent metadata: %w", err)
		}
	}
	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
