package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_recon_runs_table",
		Up:      migration002AddReconRunsTable,
	},
	{
		Version: 3,
		Name:    "add_decision_indexes",
		Up:      migration003AddDecisionIndexes,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue // Already applied
		}

		log.Printf("Running migration %d: %s", migration.Version, migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if needed
func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getAppliedMigrations returns the set of already-applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// migration001InitialSchema creates the target population and decisions
// tables.
func migration001InitialSchema(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS target_records (
			id INTEGER PRIMARY KEY,
			target_table TEXT NOT NULL,
			amount TEXT NOT NULL,
			occurred_on TEXT NOT NULL,
			descriptive_text TEXT NOT NULL DEFAULT '',
			existing_link TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS linkage_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			idempotency_key TEXT NOT NULL UNIQUE,
			source_id TEXT NOT NULL,
			source_system TEXT NOT NULL,
			origin_key TEXT NOT NULL,
			target_id INTEGER NOT NULL,
			target_table TEXT NOT NULL,
			amount TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			pass TEXT NOT NULL,
			run_id INTEGER NOT NULL DEFAULT 0,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (target_id) REFERENCES target_records(id)
		)
	`)
	return err
}

// migration002AddReconRunsTable adds run tracking.
func migration002AddReconRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS recon_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			dry_run BOOLEAN NOT NULL DEFAULT 1,
			min_confidence INTEGER NOT NULL DEFAULT 0,
			staged INTEGER NOT NULL DEFAULT 0,
			strict_matched INTEGER NOT NULL DEFAULT 0,
			fuzzy_matched INTEGER NOT NULL DEFAULT 0,
			unmatched INTEGER NOT NULL DEFAULT 0,
			applied INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			errored INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running'
		)
	`)
	return err
}

// migration003AddDecisionIndexes speeds up the audit queries.
func migration003AddDecisionIndexes(tx *sql.Tx) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_decisions_target ON linkage_decisions(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run ON linkage_decisions(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_system ON linkage_decisions(source_system)`,
		`CREATE INDEX IF NOT EXISTS idx_targets_table ON target_records(target_table)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
