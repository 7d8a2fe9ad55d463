package audit

import (
	"context"
	"database/sql"
	"fmt"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS relay_audit (
	id          BIGSERIAL PRIMARY KEY,
	request_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	recipient   TEXT NOT NULL,
	client_ip   TEXT,
	persisted   BOOLEAN NOT NULL,
	delivered   BOOLEAN NOT NULL,
	status      INTEGER NOT NULL,
	success     BOOLEAN NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
)`

const insertSQL = `INSERT INTO relay_audit
	(request_id, kind, recipient, client_ip, persisted, delivered, status, success, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the audit table when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create relay_audit: %w", err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, insertSQL,
		rec.RequestID,
		rec.Kind,
		rec.Recipient,
		sql.NullString{String: rec.ClientIP, Valid: rec.ClientIP != ""},
		rec.Persisted,
		rec.Delivered,
		rec.Status,
		rec.Success,
		rec.Duration,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert relay_audit: %w", err)
	}
	return nil
}
