package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	txcontext "safetyaudit/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Tables lists every table the schema creates, in creation order.
var Tables = []string{"accidents", "registry_entries", "audit_events"}

// Migrate applies the idempotent schema in one transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	return txcontext.Run(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		return nil
	})
}
