package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "certledger/pkg/platform/audit"
	txcontext "certledger/pkg/platform/tx"
)

// DefaultTable is the audit table created by Migrate.
const DefaultTable = "certificate_audit_events"

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

type Option func(*Store)

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Migrate creates the audit table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id             UUID PRIMARY KEY,
			category       TEXT NOT NULL,
			action         TEXT NOT NULL,
			certificate_id TEXT NOT NULL DEFAULT '',
			actor_id       TEXT NOT NULL DEFAULT '',
			decision       TEXT NOT NULL DEFAULT '',
			reason         TEXT NOT NULL DEFAULT '',
			request_id     TEXT NOT NULL DEFAULT '',
			occurred_at    TIMESTAMPTZ NOT NULL
		)`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate audit table: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, category, action, certificate_id, actor_id, decision, reason, request_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, pq.QuoteIdentifier(s.table))
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(audit.AuditEvent(event.Action).Category()),
		event.Action,
		event.CertificateID,
		event.ActorID,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByCertificate(ctx context.Context, certificateID string) ([]audit.Event, error) {
	query := fmt.Sprintf(`
		SELECT category, action, certificate_id, actor_id, decision, reason, request_id, occurred_at
		FROM %s
		WHERE certificate_id = $1
		ORDER BY occurred_at ASC
	`, pq.QuoteIdentifier(s.table))
	rows, err := s.db.QueryContext(ctx, query, certificateID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var category string
		if err := rows.Scan(&category, &e.Action, &e.CertificateID, &e.ActorID, &e.Decision, &e.Reason, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
