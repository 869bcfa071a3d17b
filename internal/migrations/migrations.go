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
		Name:    "Add run lookup indices",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_runs_started_at ON loadhook_runs(started_at DESC);
			CREATE INDEX IF NOT EXISTS idx_runs_status ON loadhook_runs(status);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_runs_started_at;
			DROP INDEX IF EXISTS idx_runs_status;
		`,
	},
	{
		Version: 2,
		Name:    "Add per-worker iteration index",
		Up: `
			-- Per-worker replay of a run orders by (worker, iteration)
			CREATE INDEX IF NOT EXISTS idx_iterations_worker ON loadhook_iterations(run_id, worker, iteration);
			CREATE INDEX IF NOT EXISTS idx_iterations_outcome ON loadhook_iterations(run_id, outcome);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_iterations_worker;
			DROP INDEX IF EXISTS idx_iterations_outcome;
		`,
	},
}

// InitSchema creates the run ledger tables.
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS loadhook_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		hooks TEXT,
		goroutines INTEGER NOT NULL,
		config_yaml TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		total_iterations INTEGER DEFAULT 0,
		total_success INTEGER DEFAULT 0,
		total_status_errors INTEGER DEFAULT 0,
		total_transport_errors INTEGER DEFAULT 0,
		total_hook_errors INTEGER DEFAULT 0,
		total_bytes INTEGER DEFAULT 0,
		avg_duration_ms REAL DEFAULT 0,
		min_duration_ms INTEGER DEFAULT 0,
		max_duration_ms INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS loadhook_iterations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		worker INTEGER NOT NULL,
		iteration INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		method TEXT,
		url TEXT,
		status_code INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		phase TEXT,
		error_message TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		request_size INTEGER DEFAULT 0,
		response_size INTEGER DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES loadhook_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_iterations_run_id ON loadhook_iterations(run_id);
	CREATE INDEX IF NOT EXISTS idx_iterations_elapsed ON loadhook_iterations(run_id, elapsed_ms);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
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
