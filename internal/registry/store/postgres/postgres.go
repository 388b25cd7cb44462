// Package postgres stores registry entry documents as JSONB rows, one table
// for every collection.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
	"safetyaudit/pkg/platform/sentinel"
	txcontext "safetyaudit/pkg/platform/tx"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID, doc models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	query := `
		INSERT INTO registry_entries (id, collection, owner_id, document)
		VALUES ($1, $2, $3, $4::jsonb)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query, uuid.UUID(entryID), collection, uuid.UUID(ownerID), string(data))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entry %s: %w", entryID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert registry entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByField(ctx context.Context, collection string, ownerID id.OwnerID, field, value string) ([]models.Document, error) {
	query := `
		SELECT document
		FROM registry_entries
		WHERE collection = $1 AND owner_id = $2 AND document ->> $3 = $4
		ORDER BY created_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, collection, uuid.UUID(ownerID), field, value)
	if err != nil {
		return nil, fmt.Errorf("query registry entries: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan registry entry: %w", err)
		}
		doc, err := decode(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry entries: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID) (models.Document, error) {
	query := `
		SELECT document
		FROM registry_entries
		WHERE collection = $1 AND owner_id = $2 AND id = $3
	`
	var data []byte
	err := s.execer(ctx).QueryRowContext(ctx, query, collection, uuid.UUID(ownerID), uuid.UUID(entryID)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registry entry: %w", err)
	}
	return decode(data)
}

// AppendToArray concatenates items onto a JSONB array field in one statement,
// creating the field when absent.
func (s *PostgresStore) AppendToArray(ctx context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID, field string, items []any) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	query := `
		UPDATE registry_entries
		SET document = jsonb_set(document, $4::text[], COALESCE(document -> $5, '[]'::jsonb) || $6::jsonb, true)
		WHERE collection = $1 AND owner_id = $2 AND id = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		collection, uuid.UUID(ownerID), uuid.UUID(entryID),
		pq.Array([]string{field}), field, string(data),
	)
	if err != nil {
		return fmt.Errorf("append to %s: %w", field, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append to %s: %w", field, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func decode(data []byte) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// isUniqueViolation recognizes the error types of both registered drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
