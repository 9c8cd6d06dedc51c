package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

var requiredTables = []string{
	"counters", "users", "assets", "likes", "reviews",
	"download_history", "processing_jobs", "audit_events",
}

// Migrate applies the idempotent schema and verifies every table exists.
func (db *DB) Migrate(ctx context.Context) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return errFailedApplySchema(err)
	}
	defer conn.Release()

	if _, err := conn.Conn().PgConn().Exec(ctx, schemaSQL).ReadAll(); err != nil {
		return errFailedApplySchema(err)
	}

	var missing []string
	for _, table := range requiredTables {
		var exists bool
		query := `SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`
		if err := db.Pool.QueryRow(ctx, query, table).Scan(&exists); err != nil {
			return errFailedVerifySchema(err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf(errMissingTablesFmt, missing)
	}

	return nil
}
