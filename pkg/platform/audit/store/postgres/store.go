package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "safetyaudit/pkg/domain"
	audit "safetyaudit/pkg/platform/audit"
	txcontext "safetyaudit/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. Appends join the
// caller's transaction when one is present in the context.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
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

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, owner_id, category, occurred_at, subject, action,
			collection, actor_id, request_id, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		uuid.UUID(event.OwnerID),
		string(event.Category),
		event.Timestamp,
		event.Subject,
		event.Action,
		event.Collection,
		event.ActorID,
		event.RequestID,
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]audit.Event, error) {
	query := `
		SELECT owner_id, category, occurred_at, subject, action,
			collection, actor_id, request_id, reason
		FROM audit_events
		WHERE owner_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0)
	for rows.Next() {
		var (
			owner    uuid.UUID
			category string
			e        audit.Event
		)
		if err := rows.Scan(&owner, &category, &e.Timestamp, &e.Subject, &e.Action,
			&e.Collection, &e.ActorID, &e.RequestID, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.OwnerID = id.OwnerID(owner)
		e.Category = audit.EventCategory(category)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
