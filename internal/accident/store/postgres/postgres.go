// Package postgres persists accidents in the accidents table. Person,
// witness and evidence lists are JSONB columns written with the row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"safetyaudit/internal/accident/models"
	registrymodels "safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
	"safetyaudit/pkg/platform/sentinel"
	txcontext "safetyaudit/pkg/platform/tx"
)

const selectColumns = `
	id, owner_id, company_id, branch_id, kind, description, severity,
	occurred_at, status, involved_persons, witnesses, evidence_refs,
	reported_by, closed_at, closed_by, closing_notes,
	created_at, updated_at, updated_by
`

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

func (s *PostgresStore) Create(ctx context.Context, a *models.Accident) error {
	lists, err := encodeLists(a)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO accidents (
			id, owner_id, company_id, branch_id, kind, description, severity,
			occurred_at, status, involved_persons, witnesses, evidence_refs,
			reported_by, closed_at, closed_by, closing_notes,
			created_at, updated_at, updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12::jsonb,
			$13, $14, $15, $16, $17, $18, $19)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(a.ID), uuid.UUID(a.OwnerID), a.CompanyID, a.BranchID,
		string(a.Kind), a.Description, string(a.Severity),
		a.OccurredAt, string(a.Status), lists.persons, lists.witnesses, lists.evidence,
		a.ReportedBy, nullTime(a), a.ClosedBy, a.ClosingNotes,
		a.CreatedAt, a.UpdatedAt, a.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert accident: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) (*models.Accident, error) {
	query := `SELECT ` + selectColumns + ` FROM accidents WHERE owner_id = $1 AND id = $2`
	return s.findOne(ctx, s.execer(ctx), query, ownerID, accidentID)
}

// Update overwrites the row. Concurrent updates resolve last-write-wins.
func (s *PostgresStore) Update(ctx context.Context, a *models.Accident) error {
	return s.update(ctx, s.execer(ctx), a)
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM accidents WHERE owner_id = $1 AND id = $2`,
		uuid.UUID(ownerID), uuid.UUID(accidentID),
	)
	if err != nil {
		return fmt.Errorf("delete accident: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) ListByBranch(ctx context.Context, ownerID id.OwnerID, branchID string) ([]*models.Accident, error) {
	query := `SELECT ` + selectColumns + ` FROM accidents WHERE owner_id = $1 AND branch_id = $2 ORDER BY occurred_at DESC`
	return s.list(ctx, query, uuid.UUID(ownerID), branchID)
}

func (s *PostgresStore) ListByCompany(ctx context.Context, ownerID id.OwnerID, companyID string) ([]*models.Accident, error) {
	query := `SELECT ` + selectColumns + ` FROM accidents WHERE owner_id = $1 AND company_id = $2 ORDER BY occurred_at DESC`
	return s.list(ctx, query, uuid.UUID(ownerID), companyID)
}

// Execute locks the row with SELECT ... FOR UPDATE, validates, mutates and
// writes it back in one transaction. It joins a transaction already carried
// by ctx.
func (s *PostgresStore) Execute(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID, validate func(*models.Accident) error, mutate func(*models.Accident)) (*models.Accident, error) {
	var out *models.Accident
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		a, err := s.execute(ctx, tx, ownerID, accidentID, validate, mutate)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) execute(ctx context.Context, q dbExecutor, ownerID id.OwnerID, accidentID id.AccidentID, validate func(*models.Accident) error, mutate func(*models.Accident)) (*models.Accident, error) {
	query := `SELECT ` + selectColumns + ` FROM accidents WHERE owner_id = $1 AND id = $2 FOR UPDATE`
	a, err := s.findOne(ctx, q, query, ownerID, accidentID)
	if err != nil {
		return nil, err
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	mutate(a)
	if err := s.update(ctx, q, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) update(ctx context.Context, q dbExecutor, a *models.Accident) error {
	lists, err := encodeLists(a)
	if err != nil {
		return err
	}
	query := `
		UPDATE accidents
		SET description = $3, severity = $4, occurred_at = $5, status = $6,
			involved_persons = $7::jsonb, witnesses = $8::jsonb, evidence_refs = $9::jsonb,
			closed_at = $10, closed_by = $11, closing_notes = $12,
			updated_at = $13, updated_by = $14
		WHERE owner_id = $1 AND id = $2
	`
	res, err := q.ExecContext(ctx, query,
		uuid.UUID(a.OwnerID), uuid.UUID(a.ID),
		a.Description, string(a.Severity), a.OccurredAt, string(a.Status),
		lists.persons, lists.witnesses, lists.evidence,
		nullTime(a), a.ClosedBy, a.ClosingNotes,
		a.UpdatedAt, a.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("update accident: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) findOne(ctx context.Context, q dbExecutor, query string, ownerID id.OwnerID, accidentID id.AccidentID) (*models.Accident, error) {
	a, err := scanAccident(q.QueryRowContext(ctx, query, uuid.UUID(ownerID), uuid.UUID(accidentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find accident: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Accident, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accidents: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Accident, 0)
	for rows.Next() {
		a, err := scanAccident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan accident: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accidents: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccident(row scanner) (*models.Accident, error) {
	var (
		a                            models.Accident
		accidentID, ownerID          uuid.UUID
		kind, severity, status       string
		persons, witnesses, evidence []byte
		closedAt                     sql.NullTime
	)
	err := row.Scan(
		&accidentID, &ownerID, &a.CompanyID, &a.BranchID, &kind, &a.Description, &severity,
		&a.OccurredAt, &status, &persons, &witnesses, &evidence,
		&a.ReportedBy, &closedAt, &a.ClosedBy, &a.ClosingNotes,
		&a.CreatedAt, &a.UpdatedAt, &a.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	a.ID = id.AccidentID(accidentID)
	a.OwnerID = id.OwnerID(ownerID)
	a.Kind = models.Kind(kind)
	a.Severity = models.Severity(severity)
	a.Status = models.Status(status)
	if closedAt.Valid {
		t := closedAt.Time
		a.ClosedAt = &t
	}
	if err := decodeList(persons, &a.InvolvedPersons); err != nil {
		return nil, err
	}
	if err := decodeList(witnesses, &a.Witnesses); err != nil {
		return nil, err
	}
	if err := decodeList(evidence, &a.EvidenceRefs); err != nil {
		return nil, err
	}
	return &a, nil
}

type encodedLists struct {
	persons, witnesses, evidence string
}

func encodeLists(a *models.Accident) (encodedLists, error) {
	persons, err := encodeList(a.InvolvedPersons)
	if err != nil {
		return encodedLists{}, err
	}
	witnesses, err := encodeList(a.Witnesses)
	if err != nil {
		return encodedLists{}, err
	}
	evidence, err := encodeList(a.EvidenceRefs)
	if err != nil {
		return encodedLists{}, err
	}
	return encodedLists{persons: persons, witnesses: witnesses, evidence: evidence}, nil
}

func encodeList[T models.InvolvedPerson | models.Witness | registrymodels.Evidence](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode accident list: %w", err)
	}
	return string(raw), nil
}

func decodeList[T any](raw []byte, dst *[]T) error {
	*dst = []T{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode accident list: %w", err)
	}
	return nil
}

func nullTime(a *models.Accident) sql.NullTime {
	if a.ClosedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *a.ClosedAt, Valid: true}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
