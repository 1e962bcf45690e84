package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add profile and outcome indices to calls",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_calls_profile ON calls(profile_name);
			CREATE INDEX IF NOT EXISTS idx_calls_outcome ON calls(outcome);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_calls_profile;
			DROP INDEX IF EXISTS idx_calls_outcome;
		`,
	},
	{
		Version: 2,
		Name:    "Add composite index for per-profile listing",
		Up: `
			-- profile filter + newest first (List, Stats)
			CREATE INDEX IF NOT EXISTS idx_calls_profile_timestamp ON calls(profile_name, timestamp DESC);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_calls_profile_timestamp;
		`,
	},
}

// InitSchema creates all tables
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		call_id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		profile_name TEXT NOT NULL DEFAULT '',
		request_name TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		status INTEGER NOT NULL DEFAULT 0,
		code TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		payload_size INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_calls_timestamp ON calls(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_calls_request_name ON calls(request_name);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	if err := InitSchema(db); err != nil {
		return err
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}
