package migrations

import "database/sql"

// MigrateAgentContextColumns adds the v2 agent columns: last_progress
// (free-form checkpoint restored by `aqua refresh`) and role (advisory
// tag consulted by role-aware task selection).
func MigrateAgentContextColumns(db *sql.DB) error {
	if err := addColumnIfMissing(db, "agents", "last_progress", "TEXT"); err != nil {
		return err
	}
	return addColumnIfMissing(db, "agents", "role", "TEXT")
}
