// Package migrations versions the history database schema.
package migrations

import (
	"database/sql"
	"fmt"
)

// Migration is a single schema migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// AllMigrations contains all migrations in order.
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add workspace index to history",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_history_workspace ON history(workspace_id);
			CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
		`,
	},
	{
		Version: 2,
		Name:    "Add request_type index for realtime session filtering",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_history_request_type ON history(request_type);
		`,
	},
}

// Run applies every pending migration inside a transaction each.
func Run(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current := 0
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range AllMigrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
