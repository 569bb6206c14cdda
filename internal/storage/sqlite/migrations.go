// Package sqlite - schema bootstrap and migrations
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/storage/sqlite/migrations"
)

// Migration is a single named database migration.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations. Run in order
// during database initialization; every entry is idempotent.
var migrationsList = []Migration{
	{"agent_context_columns", migrations.MigrateAgentContextColumns},
	{"task_depends_on", migrations.MigrateTaskDependsOn},
}

// ensureSchema creates missing tables, checks the stored schema version
// against the compiled one, and brings older databases forward.
func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", mapSQLiteErr(err))
	}

	var stored sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows || (err == nil && !stored.Valid):
		// Fresh database: the schema constant is already current. OR
		// IGNORE covers two processes initializing at once.
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", mapSQLiteErr(err))
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", mapSQLiteErr(err))
	}

	switch {
	case stored.Int64 > schemaVersion:
		return fmt.Errorf("%w: stored version %d, compiled version %d",
			storage.ErrSchemaVersion, stored.Int64, schemaVersion)
	case stored.Int64 == schemaVersion:
		return nil
	}

	if err := runMigrations(s.db); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE schema_version SET version = ?`, schemaVersion); err != nil {
		return fmt.Errorf("failed to bump schema version: %w", mapSQLiteErr(err))
	}
	return nil
}

// runMigrations executes all registered migrations in order under an
// EXCLUSIVE transaction. Without the exclusive lock, parallel processes
// opening the database race on check-then-alter and fail with
// "duplicate column" errors.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", mapSQLiteErr(err))
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}
