package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "safetyaudit/pkg/domain"
	audit "safetyaudit/pkg/platform/audit"
	txcontext "safetyaudit/pkg/platform/tx"
)

func TestAppendUsesTransactionFromContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	owner := id.OwnerID(uuid.New())
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs(sqlmock.AnyArg(), uuid.UUID(owner), "compliance", now, "acc-1",
			string(audit.EventAccidentClosed), "", "user-7", "req-1", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	ctx := txcontext.WithTx(context.Background(), tx)

	store := New(db)
	err = store.Append(ctx, audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: now,
		OwnerID:   owner,
		Subject:   "acc-1",
		Action:    string(audit.EventAccidentClosed),
		ActorID:   "user-7",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	owner := id.OwnerID(uuid.New())
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"owner_id", "category", "occurred_at", "subject", "action",
		"collection", "actor_id", "request_id", "reason"}).
		AddRow(owner.String(), "operations", now, "entry-1", "registry_entry_created",
			"accident_entries", "user-7", "", "")

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_events")).
		WithArgs(uuid.UUID(owner)).
		WillReturnRows(rows)

	events, err := New(db).ListByOwner(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, owner, events[0].OwnerID)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
	assert.Equal(t, "accident_entries", events[0].Collection)
	require.NoError(t, mock.ExpectationsWereMet())
}
