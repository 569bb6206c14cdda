package migrations

import "database/sql"

// MigrateTaskDependsOn adds the v3 tasks.depends_on column: a JSON list
// of task ids that must all be done before the task is claimable.
func MigrateTaskDependsOn(db *sql.DB) error {
	return addColumnIfMissing(db, "tasks", "depends_on", "TEXT")
}
